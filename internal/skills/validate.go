package skills

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateParams checks params against def.ParamsSchema when one is
// declared. A skill with no schema accepts any params (spec §4.5 leaves
// param shape implicit for untyped skills).
func ValidateParams(def Definition, params map[string]string) error {
	if len(def.ParamsSchema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(def.ParamsSchema, &schemaDoc); err != nil {
		return fmt.Errorf("skills: unmarshal paramsSchema for %s: %w", def.ID, err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("skills: marshal params for %s: %w", def.ID, err)
	}
	var paramsDoc any
	if err := json.Unmarshal(paramsJSON, &paramsDoc); err != nil {
		return fmt.Errorf("skills: unmarshal params for %s: %w", def.ID, err)
	}

	c := jsonschema.NewCompiler()
	resource := "skill://" + def.ID + "/params-schema.json"
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return fmt.Errorf("skills: add schema resource for %s: %w", def.ID, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("skills: compile paramsSchema for %s: %w", def.ID, err)
	}
	if err := schema.Validate(paramsDoc); err != nil {
		return fmt.Errorf("skills: params for %s failed validation: %w", def.ID, err)
	}
	return nil
}
