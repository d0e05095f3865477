// Package extract wraps a single call to the external extraction model.
//
// The client is a pure single-attempt operation: it builds the prompt,
// accumulates the (possibly streamed) response until the model signals
// completion, and validates the payload against the required shape. It carries
// no retry logic; classifying an attempt as worth retrying and scheduling that
// retry is the pipeline's job. Failures surface as *ServiceError values whose
// Kind tells the scheduler what to do with them.
package extract
