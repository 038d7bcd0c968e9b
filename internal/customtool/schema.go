// Package customtool implements the Custom-Tool Proxy (C4): synthetic
// tools the gateway executes itself by calling an external HTTP
// workflow API, validating arguments against a JSON Schema subset
// first.
//
// No third-party JSON Schema validator is wired here — see DESIGN.md
// for why: none of the example repos import one, and the subset this
// gateway needs (type/properties/required/enum/additionalProperties)
// is small enough that hand-rolling it keeps the dependency surface
// honest rather than pulling in a general-purpose validator for five
// keywords.
package customtool

import (
	"fmt"
	"sort"
)

// ValidateArgs checks args against a JSON Schema draft 2020-12 subset
// (type, properties, required, enum, additionalProperties) and returns
// every violation found, not just the first.
func ValidateArgs(schema map[string]interface{}, args map[string]interface{}) []string {
	var problems []string
	validateObject(schema, args, "", &problems)
	return problems
}

func validateObject(schema map[string]interface{}, value interface{}, path string, problems *[]string) {
	schemaType, _ := schema["type"].(string)
	if schemaType != "" && !typeMatches(schemaType, value) {
		*problems = append(*problems, fmt.Sprintf("%s: expected type %q, got %s", displayPath(path), schemaType, describeType(value)))
		return
	}

	switch schemaType {
	case "object", "":
		obj, ok := value.(map[string]interface{})
		if !ok {
			if schemaType == "object" {
				return // already reported above
			}
			obj = map[string]interface{}{}
		}
		validateProperties(schema, obj, path, problems)
	case "array":
		validateArray(schema, value, path, problems)
	default:
		validateScalar(schema, value, path, problems)
	}
}

func validateProperties(schema map[string]interface{}, obj map[string]interface{}, path string, problems *[]string) {
	required, _ := schema["required"].([]interface{})
	for _, r := range required {
		name, _ := r.(string)
		if _, ok := obj[name]; !ok {
			*problems = append(*problems, fmt.Sprintf("%s: missing required field", displayPath(path+"/"+name)))
		}
	}

	properties, _ := schema["properties"].(map[string]interface{})
	for key, value := range obj {
		propSchemaRaw, known := properties[key]
		if !known {
			if additionalAllowed(schema) {
				continue
			}
			*problems = append(*problems, fmt.Sprintf("%s: additional property %q is not allowed", displayPath(path), key))
			continue
		}
		propSchema, _ := propSchemaRaw.(map[string]interface{})
		if propSchema == nil {
			continue
		}
		validateValue(propSchema, value, path+"/"+key, problems)
	}
}

func additionalAllowed(schema map[string]interface{}) bool {
	raw, ok := schema["additionalProperties"]
	if !ok {
		return true
	}
	allowed, isBool := raw.(bool)
	return !isBool || allowed
}

func validateArray(schema map[string]interface{}, value interface{}, path string, problems *[]string) {
	arr, ok := value.([]interface{})
	if !ok {
		return // type mismatch already reported by caller
	}
	itemSchema, _ := schema["items"].(map[string]interface{})
	if itemSchema == nil {
		return
	}
	for i, item := range arr {
		validateValue(itemSchema, item, fmt.Sprintf("%s[%d]", path, i), problems)
	}
}

func validateScalar(schema map[string]interface{}, value interface{}, path string, problems *[]string) {
	enum, _ := schema["enum"].([]interface{})
	if len(enum) == 0 {
		return
	}
	for _, allowed := range enum {
		if valuesEqual(allowed, value) {
			return
		}
	}
	*problems = append(*problems, fmt.Sprintf("%s: value %v is not one of the allowed values %v", displayPath(path), value, enumList(enum)))
}

// validateValue dispatches type check + enum + nested object/array
// validation for one field, used by both object-property and
// array-item recursion.
func validateValue(schema map[string]interface{}, value interface{}, path string, problems *[]string) {
	schemaType, _ := schema["type"].(string)
	if schemaType != "" && !typeMatches(schemaType, value) {
		*problems = append(*problems, fmt.Sprintf("%s: expected type %q, got %s", displayPath(path), schemaType, describeType(value)))
		return
	}
	switch schemaType {
	case "object":
		obj, _ := value.(map[string]interface{})
		validateProperties(schema, obj, path, problems)
	case "array":
		validateArray(schema, value, path, problems)
	default:
		validateScalar(schema, value, path, problems)
	}
}

func typeMatches(schemaType string, value interface{}) bool {
	if value == nil {
		return schemaType == "null"
	}
	switch schemaType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func describeType(value interface{}) string {
	switch value.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func valuesEqual(a, b interface{}) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func enumList(enum []interface{}) []string {
	out := make([]string, len(enum))
	for i, v := range enum {
		out[i] = fmt.Sprint(v)
	}
	sort.Strings(out)
	return out
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
