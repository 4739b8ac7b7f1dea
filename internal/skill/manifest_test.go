package skill_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/rscheiwe/open-skills/internal/skill"
)

const validManifest = `---
name: csv-summarize
version: 1.2.0
entrypoint: scripts/main.py:summarize
description: Summarize a CSV file.
tags: [data, csv]
inputs:
  - name: path
    type: string
    required: true
  - name: max_rows
    type: integer
    default: 100
outputs:
  - name: row_count
    type: integer
allow_network: false
timeout_seconds: 30
---
# csv-summarize

Reads a CSV and reports simple statistics.
`

func TestParseManifest(t *testing.T) {
	m, err := skill.ParseManifest([]byte(validManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if m.Name != "csv-summarize" {
		t.Errorf("Name = %q, want %q", m.Name, "csv-summarize")
	}
	if m.Version != "1.2.0" {
		t.Errorf("Version = %q, want %q", m.Version, "1.2.0")
	}
	if got := m.EntrypointScript(); got != "scripts/main.py" {
		t.Errorf("EntrypointScript() = %q, want %q", got, "scripts/main.py")
	}
	if got := m.EntrypointFunc(); got != "summarize" {
		t.Errorf("EntrypointFunc() = %q, want %q", got, "summarize")
	}
	if len(m.Inputs) != 2 || len(m.Outputs) != 1 {
		t.Errorf("declared params = %d/%d inputs/outputs, want 2/1", len(m.Inputs), len(m.Outputs))
	}
	if m.Inputs[1].Default == nil {
		t.Error("expected max_rows default to survive parsing")
	}
	if m.TimeoutSeconds == nil || *m.TimeoutSeconds != 30 {
		t.Errorf("TimeoutSeconds = %v, want 30", m.TimeoutSeconds)
	}
	if m.AllowNetwork {
		t.Error("AllowNetwork = true, want false")
	}
	if !strings.Contains(m.Doc, "simple statistics") {
		t.Errorf("Doc did not keep the markdown body: %q", m.Doc)
	}
}

func TestParseManifestDefaultFunc(t *testing.T) {
	m, err := skill.ParseManifest([]byte("---\nname: echo\nversion: 0.1.0\nentrypoint: main.py\n---\n"))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if got := m.EntrypointFunc(); got != "run" {
		t.Errorf("EntrypointFunc() = %q, want %q", got, "run")
	}
}

func TestParseManifestRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "# just markdown\n"},
		{"unterminated frontmatter", "---\nname: echo\nversion: 0.1.0\n"},
		{"unknown key", "---\nname: echo\nversion: 0.1.0\nentrypoint: main.py\nbogus: 1\n---\n"},
		{"missing name", "---\nversion: 0.1.0\nentrypoint: main.py\n---\n"},
		{"uppercase name", "---\nname: Echo\nversion: 0.1.0\nentrypoint: main.py\n---\n"},
		{"missing version", "---\nname: echo\nentrypoint: main.py\n---\n"},
		{"bad version", "---\nname: echo\nversion: v1\nentrypoint: main.py\n---\n"},
		{"missing entrypoint", "---\nname: echo\nversion: 0.1.0\n---\n"},
		{"absolute entrypoint", "---\nname: echo\nversion: 0.1.0\nentrypoint: /etc/main.py\n---\n"},
		{"escaping entrypoint", "---\nname: echo\nversion: 0.1.0\nentrypoint: ../main.py\n---\n"},
		{"non-python entrypoint", "---\nname: echo\nversion: 0.1.0\nentrypoint: main.sh\n---\n"},
		{"bad function name", "---\nname: echo\nversion: 0.1.0\nentrypoint: \"main.py:1st\"\n---\n"},
		{"zero timeout", "---\nname: echo\nversion: 0.1.0\nentrypoint: main.py\ntimeout_seconds: 0\n---\n"},
		{"unnamed input", "---\nname: echo\nversion: 0.1.0\nentrypoint: main.py\ninputs:\n  - type: string\n---\n"},
		{"duplicate input", "---\nname: echo\nversion: 0.1.0\nentrypoint: main.py\ninputs:\n  - name: a\n  - name: a\n---\n"},
		{"unknown input type", "---\nname: echo\nversion: 0.1.0\nentrypoint: main.py\ninputs:\n  - name: a\n    type: float\n---\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := skill.ParseManifest([]byte(tt.content))
			if err == nil {
				t.Fatal("ParseManifest() error = nil, want validation error")
			}
			var verr *skill.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("error %v is not a *ValidationError", err)
			}
		})
	}
}

func TestParseManifestPrereleaseVersion(t *testing.T) {
	m, err := skill.ParseManifest([]byte("---\nname: echo\nversion: 1.0.0-rc.1\nentrypoint: main.py\n---\n"))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if m.Version != "1.0.0-rc.1" {
		t.Errorf("Version = %q, want %q", m.Version, "1.0.0-rc.1")
	}
}
