package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var spanPattern = regexp.MustCompile(`\$\{\{(.*?)\}\}`)

// Interpolate replaces every `${{ expression }}` span inside s with the
// stringified result of evaluating it. A string with no spans is returned
// unchanged. Any span failing to resolve fails the whole interpolation;
// the caller decides whether that is fatal for its site.
func (e *Evaluator) Interpolate(s string, env Env) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	var firstErr error
	out := spanPattern.ReplaceAllStringFunc(s, func(span string) string {
		if firstErr != nil {
			return span
		}
		inner := strings.TrimSpace(span[3 : len(span)-2])
		val, err := e.Eval(inner, env)
		if err != nil {
			firstErr = err
			return span
		}
		return Stringify(val)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// InterpolateMap interpolates every value of a string map, returning a new
// map. Keys pass through untouched.
func (e *Evaluator) InterpolateMap(in map[string]string, env Env) (map[string]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		resolved, err := e.Interpolate(v, env)
		if err != nil {
			return nil, fmt.Errorf("value of %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// Stringify renders an expression result the way it appears in command
// text and inputs.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
