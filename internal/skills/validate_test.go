package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateParamsNoSchemaAlwaysPasses(t *testing.T) {
	def := Definition{ID: "s1"}
	assert.NoError(t, ValidateParams(def, map[string]string{"anything": "goes"}))
}

func TestValidateParamsEnforcesRequiredFields(t *testing.T) {
	def := Definition{
		ID: "s1",
		ParamsSchema: []byte(`{
			"type": "object",
			"required": ["code"],
			"properties": {"code": {"type": "string"}}
		}`),
	}

	assert.NoError(t, ValidateParams(def, map[string]string{"code": "x=1"}))
	assert.Error(t, ValidateParams(def, map[string]string{"other": "x"}))
}
