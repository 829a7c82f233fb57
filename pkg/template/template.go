// Package template renders node configuration expressions against execution
// data. Expressions use Go text/template syntax; rendered output is re-parsed
// so `{{.input.count}}` yields a number, not the string "42".
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render evaluates a template expression against the given data and returns
// the result coerced to JSON, number, or boolean when it parses as one.
func Render(expression string, data any) (any, error) {
	tmpl, err := parse(expression)
	if err != nil {
		return nil, err
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", expression, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var parsed any
		if err := json.Unmarshal([]byte(result), &parsed); err == nil {
			return parsed, nil
		}
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// Check parses an expression without evaluating it, reporting syntax errors.
func Check(expression string) error {
	_, err := parse(expression)

	return err
}

func parse(expression string) (*template.Template, error) {
	tmpl, err := template.
		New("expression").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expression '%s': %w", expression, err)
	}

	return tmpl, nil
}

// Truthy converts an evaluated expression result to a boolean: false, zero,
// empty string, empty collection, and nil are falsy; everything else is
// truthy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case float32:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}
