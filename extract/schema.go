package extract

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// payloadSchema is the structural contract on the model's response: three
// top-level arrays must be present. Element contents are intentionally left
// open; their semantics belong to the graph loader downstream.
const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["entities", "events", "relations"],
  "properties": {
    "entities":  {"type": "array", "items": {"type": "object"}},
    "events":    {"type": "array", "items": {"type": "object"}},
    "relations": {"type": "array", "items": {"type": "object"}}
  }
}`

// compilePayloadSchema compiles the payload contract once per client.
func compilePayloadSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", strings.NewReader(payloadSchema)); err != nil {
		return nil, fmt.Errorf("add payload schema: %w", err)
	}
	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return schema, nil
}
