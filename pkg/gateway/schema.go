package gateway

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// OptionFirewall validates scan options against per-operation JSON
// Schemas before delegation. Operations without a schema pass through.
type OptionFirewall struct {
	schemas map[string]*jsonschema.Schema
}

func NewOptionFirewall() *OptionFirewall {
	return &OptionFirewall{schemas: make(map[string]*jsonschema.Schema)}
}

// SetSchema compiles and registers a JSON Schema for an operation.
// An empty schema string clears the registration.
func (f *OptionFirewall) SetSchema(operation, schema string) error {
	if schema == "" {
		delete(f.schemas, operation)
		return nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://trustplane.schemas.local/gateway/%s.schema.json", operation)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("option schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("option schema compile failed: %w", err)
	}
	f.schemas[operation] = compiled
	return nil
}

// Check validates options for an operation against its schema, if any.
func (f *OptionFirewall) Check(operation string, options map[string]any) error {
	schema, ok := f.schemas[operation]
	if !ok || schema == nil {
		return nil
	}
	if options == nil {
		options = map[string]any{}
	}
	if err := schema.Validate(options); err != nil {
		return &PolicyDeniedError{Operation: operation, Reason: fmt.Sprintf("option schema validation failed: %v", err)}
	}
	return nil
}
