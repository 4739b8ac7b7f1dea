package skill

import (
	"fmt"
	"math"

	"github.com/rscheiwe/open-skills/internal/model"
)

// ResolveInputs checks a caller payload against the declared inputs: defaults
// are applied, required inputs must be present and every declared input that
// is present must match its declared type. Undeclared payload keys pass
// through untouched. The caller's map is not mutated.
func ResolveInputs(declared []model.ParamSpec, payload map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(payload)+len(declared))
	for k, v := range payload {
		resolved[k] = v
	}
	for _, p := range declared {
		v, ok := resolved[p.Name]
		if !ok {
			if p.Default != nil {
				resolved[p.Name] = p.Default
				continue
			}
			if p.Required {
				return nil, invalid("inputs", fmt.Sprintf("missing required input %q", p.Name))
			}
			continue
		}
		if p.Type != "" && !matchesType(p.Type, v) {
			return nil, invalid("inputs", fmt.Sprintf("input %q is not of type %s", p.Name, p.Type))
		}
	}
	return resolved, nil
}

// ValidateOutputs checks an envelope's outputs against the declared outputs.
// Declared names that appear must match their declared type; undeclared keys
// are allowed.
func ValidateOutputs(declared []model.ParamSpec, outputs map[string]any) error {
	for _, p := range declared {
		v, ok := outputs[p.Name]
		if !ok || p.Type == "" {
			continue
		}
		if !matchesType(p.Type, v) {
			return invalid("outputs", fmt.Sprintf("output %q is not of type %s", p.Name, p.Type))
		}
	}
	return nil
}

// matchesType reports whether a decoded JSON/YAML value conforms to a
// declared param type. JSON decoding yields float64 for every number, so
// integer accepts whole floats.
func matchesType(declaredType string, v any) bool {
	switch declaredType {
	case model.TypeString:
		_, ok := v.(string)
		return ok
	case model.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case model.TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case model.TypeInteger:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		}
		return false
	case model.TypeObject:
		_, ok := v.(map[string]any)
		return ok
	case model.TypeArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}
