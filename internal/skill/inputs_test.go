package skill_test

import (
	"testing"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/skill"
)

func TestResolveInputs(t *testing.T) {
	declared := []model.ParamSpec{
		{Name: "path", Type: model.TypeString, Required: true},
		{Name: "max_rows", Type: model.TypeInteger, Default: 100},
		{Name: "strict", Type: model.TypeBoolean},
	}

	got, err := skill.ResolveInputs(declared, map[string]any{"path": "/tmp/data.csv", "extra": true})
	if err != nil {
		t.Fatalf("ResolveInputs() error = %v", err)
	}
	if got["path"] != "/tmp/data.csv" {
		t.Errorf("path = %v, want /tmp/data.csv", got["path"])
	}
	if got["max_rows"] != 100 {
		t.Errorf("max_rows = %v, want default 100", got["max_rows"])
	}
	if got["extra"] != true {
		t.Error("undeclared key did not pass through")
	}
	if _, ok := got["strict"]; ok {
		t.Error("optional input without default should stay absent")
	}
}

func TestResolveInputsDoesNotMutatePayload(t *testing.T) {
	declared := []model.ParamSpec{{Name: "n", Type: model.TypeInteger, Default: 1}}
	payload := map[string]any{"other": "x"}
	if _, err := skill.ResolveInputs(declared, payload); err != nil {
		t.Fatalf("ResolveInputs() error = %v", err)
	}
	if _, ok := payload["n"]; ok {
		t.Error("ResolveInputs mutated the caller's payload")
	}
}

func TestResolveInputsMissingRequired(t *testing.T) {
	declared := []model.ParamSpec{{Name: "path", Type: model.TypeString, Required: true}}
	if _, err := skill.ResolveInputs(declared, map[string]any{}); err == nil {
		t.Fatal("ResolveInputs() without required input succeeded, want error")
	}
}

func TestResolveInputsTypeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		declared model.ParamSpec
		value    any
		ok       bool
	}{
		{"string ok", model.ParamSpec{Name: "v", Type: model.TypeString}, "x", true},
		{"string got int", model.ParamSpec{Name: "v", Type: model.TypeString}, 3, false},
		{"integer from json float", model.ParamSpec{Name: "v", Type: model.TypeInteger}, float64(3), true},
		{"integer from fractional", model.ParamSpec{Name: "v", Type: model.TypeInteger}, 3.5, false},
		{"number from int", model.ParamSpec{Name: "v", Type: model.TypeNumber}, 3, true},
		{"number from float", model.ParamSpec{Name: "v", Type: model.TypeNumber}, 3.5, true},
		{"number got string", model.ParamSpec{Name: "v", Type: model.TypeNumber}, "3", false},
		{"boolean ok", model.ParamSpec{Name: "v", Type: model.TypeBoolean}, false, true},
		{"object ok", model.ParamSpec{Name: "v", Type: model.TypeObject}, map[string]any{"a": 1}, true},
		{"object got array", model.ParamSpec{Name: "v", Type: model.TypeObject}, []any{1}, false},
		{"array ok", model.ParamSpec{Name: "v", Type: model.TypeArray}, []any{1}, true},
		{"untyped accepts anything", model.ParamSpec{Name: "v"}, struct{}{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := skill.ResolveInputs([]model.ParamSpec{tt.declared}, map[string]any{"v": tt.value})
			if tt.ok && err != nil {
				t.Errorf("ResolveInputs() error = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("ResolveInputs() error = nil, want type mismatch")
			}
		})
	}
}

func TestValidateOutputs(t *testing.T) {
	declared := []model.ParamSpec{{Name: "row_count", Type: model.TypeInteger}}

	if err := skill.ValidateOutputs(declared, map[string]any{"row_count": float64(12), "note": "ok"}); err != nil {
		t.Errorf("ValidateOutputs() error = %v, want nil", err)
	}
	if err := skill.ValidateOutputs(declared, map[string]any{"note": "ok"}); err != nil {
		t.Errorf("ValidateOutputs() with absent declared output error = %v, want nil", err)
	}
	if err := skill.ValidateOutputs(declared, map[string]any{"row_count": "twelve"}); err == nil {
		t.Error("ValidateOutputs() accepted a mistyped declared output")
	}
}
