package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateInput checks input against the named tool's declared input
// schema, the same jsonschema compile-and-validate shape
// internal/skills.ValidateParams uses for skill params. A call against an
// unknown tool is itself a Validation-kind error (spec §7).
func ValidateInput(toolName string, input any) error {
	spec, ok := ByName(toolName)
	if !ok {
		return Envelope{Err: fmt.Sprintf("unknown tool %q", toolName), Kind: ErrValidation, Tool: toolName}
	}
	if len(spec.InputSchema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(spec.InputSchema, &schemaDoc); err != nil {
		return fmt.Errorf("tools: unmarshal input schema for %s: %w", toolName, err)
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return Envelope{Err: err.Error(), Kind: ErrValidation, Tool: toolName}
	}
	var inputDoc any
	if err := json.Unmarshal(inputJSON, &inputDoc); err != nil {
		return Envelope{Err: err.Error(), Kind: ErrValidation, Tool: toolName}
	}

	c := jsonschema.NewCompiler()
	resource := "tool://" + toolName + "/input-schema.json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return fmt.Errorf("tools: add schema resource for %s: %w", toolName, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("tools: compile input schema for %s: %w", toolName, err)
	}
	if err := schema.Validate(inputDoc); err != nil {
		return Envelope{
			Err:            err.Error(),
			Kind:           ErrValidation,
			Tool:           toolName,
			ExpectedSchema: string(spec.InputSchema),
		}
	}
	return nil
}
