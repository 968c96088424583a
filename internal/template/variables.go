// Package template renders {{key}} placeholders in notification templates.
package template

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"time"
)

// variablePattern matches {{key}} with optional whitespace. Keys may contain dots
// and dashes so nested names such as {{labels.severity}} work.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.\-]*)\s*\}\}`)

// Render replaces every {{key}} in tmpl with vars[key].
// Placeholders without a matching key are left untouched.
func Render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	return variablePattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := variablePattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		if v, ok := vars[sub[1]]; ok {
			return v
		}
		return match
	})
}

// RenderAll renders each template and returns the results in the same order.
func RenderAll(vars map[string]string, tmpls ...string) []string {
	out := make([]string, len(tmpls))
	for i, t := range tmpls {
		out[i] = Render(t, vars)
	}
	return out
}

// RenderMap renders every value of m. A nil map stays nil.
func RenderMap(m map[string]string, vars map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Render(v, vars)
	}
	return out
}

// MergeVariables merges layers in increasing priority: later layers win.
func MergeVariables(layers ...map[string]string) map[string]string {
	size := 0
	for _, l := range layers {
		size += len(l)
	}
	out := make(map[string]string, size)
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}

// ExtractVariableNames returns all unique placeholder names in order of appearance.
func ExtractVariableNames(tmpl string) []string {
	matches := variablePattern.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]bool)
	names := make([]string, 0, len(matches))

	for _, m := range matches {
		if len(m) == 2 && !seen[m[1]] {
			names = append(names, m[1])
			seen[m[1]] = true
		}
	}
	return names
}

// Stringify converts typed context values into template variables.
func Stringify(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = FormatValue(v)
	}
	return out
}

// FormatValue renders a single value the way templates display it.
// Times use RFC 3339 in UTC, integral floats drop the fraction and
// composite values are encoded as JSON.
func FormatValue(value any) string {
	switch val := value.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case error:
		return val.Error()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
