package scheduler

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"Friday_1.0/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// MergeVariables resolves the final variable set for a run: declared
// defaults first, then caller-provided values on top. Callers may only
// set declared variables; required variables without a default must be
// provided.
func MergeVariables(defs map[string]models.VariableDef, provided map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(defs))
	for name, def := range defs {
		if def.Default != nil {
			merged[name] = def.Default
		}
	}

	for name, value := range provided {
		if _, declared := defs[name]; !declared {
			return nil, fmt.Errorf("variable %q is not declared by the recipe", name)
		}
		merged[name] = value
	}

	// Deterministic error order makes failures reproducible.
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		value, ok := merged[name]
		if !ok {
			if def.Required {
				return nil, fmt.Errorf("required variable %q is missing", name)
			}
			continue
		}
		if err := checkType(name, def.Type, value); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// checkType verifies a variable value against its declared type. An
// empty type means string.
func checkType(name string, t models.VariableType, v interface{}) error {
	switch t {
	case "", models.VariableTypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("variable %q must be a string, got %T", name, v)
		}
	case models.VariableTypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("variable %q must be a number, got %T", name, v)
		}
	case models.VariableTypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("variable %q must be a boolean, got %T", name, v)
		}
	case models.VariableTypeArray:
		switch v.(type) {
		case []interface{}, []string:
		default:
			return fmt.Errorf("variable %q must be an array, got %T", name, v)
		}
	default:
		return fmt.Errorf("variable %q has unknown type %q", name, t)
	}
	return nil
}

// RenderTemplate substitutes {{name}} placeholders with variable values.
// A placeholder without a value is an error rather than silent
// passthrough.
func RenderTemplate(template string, vars map[string]interface{}) (string, error) {
	var missing []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return formatValue(value)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("template references undefined variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

func formatValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int32:
		return strconv.FormatInt(int64(value), 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case []string:
		return strings.Join(value, ", ")
	case []interface{}:
		parts := make([]string, len(value))
		for i, item := range value {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", value)
	}
}
