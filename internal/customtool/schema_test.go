package customtool

import "testing"

func TestValidateArgsRequiredField(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"query"},
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}
	problems := ValidateArgs(schema, map[string]interface{}{})
	if len(problems) == 0 {
		t.Fatalf("expected a missing-field violation")
	}
}

func TestValidateArgsTypeMismatch(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}
	problems := ValidateArgs(schema, map[string]interface{}{"query": float64(42)})
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly 1", problems)
	}
}

func TestValidateArgsEnumViolation(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"unit": map[string]interface{}{"type": "string", "enum": []interface{}{"celsius", "fahrenheit"}},
		},
	}
	problems := ValidateArgs(schema, map[string]interface{}{"unit": "kelvin"})
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly 1", problems)
	}
}

func TestValidateArgsAdditionalPropertiesDisallowed(t *testing.T) {
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
		},
	}
	problems := ValidateArgs(schema, map[string]interface{}{"query": "x", "extra": "y"})
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly 1", problems)
	}
}

func TestValidateArgsValidPasses(t *testing.T) {
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"query"},
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
			"limit": map[string]interface{}{"type": "integer"},
		},
	}
	problems := ValidateArgs(schema, map[string]interface{}{"query": "weather", "limit": float64(5)})
	if len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestValidateArgsNestedArray(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	}
	problems := ValidateArgs(schema, map[string]interface{}{"tags": []interface{}{"a", float64(1)}})
	if len(problems) != 1 {
		t.Fatalf("problems = %v, want exactly 1 (second tag is not a string)", problems)
	}
}
