// Package merge consolidates per-segment extraction records into one graph
// document per volume.
//
// Entities are deduplicated by normalized name with their list fields
// (aliases, evidence) unioned; relations and events are deduplicated by
// composite keys. The merge is purely mechanical: it never invents data and
// never drops a field it does not understand.
package merge
