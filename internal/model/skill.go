package model

import "time"

// Param type constants for declared skill inputs and outputs.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// ValidParamType reports whether the given declared type name is known.
func ValidParamType(t string) bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject, TypeArray:
		return true
	}
	return false
}

// ParamSpec describes one declared input or output of a skill. Default and
// Required are only meaningful for inputs.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// Skill is a registry entry grouping the published versions of one skill.
type Skill struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SkillVersion is one immutable published version of a skill. BundleDir is
// the absolute path of the bundle on disk; Checksum is the sha256 of its
// SKILL.md at publish time.
type SkillVersion struct {
	ID           string      `json:"id"`
	SkillName    string      `json:"skill_name"`
	Version      string      `json:"version"`
	Entrypoint   string      `json:"entrypoint"`
	Description  string      `json:"description,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	Inputs       []ParamSpec `json:"inputs,omitempty"`
	Outputs      []ParamSpec `json:"outputs,omitempty"`
	AllowNetwork bool        `json:"allow_network"`
	TimeoutS     *int        `json:"timeout_s,omitempty"`
	BundleDir    string      `json:"bundle_dir"`
	Checksum     string      `json:"checksum"`
	CreatedAt    time.Time   `json:"created_at"`
}

// FullName returns the name@version identifier of the skill version.
func (v *SkillVersion) FullName() string {
	return v.SkillName + "@" + v.Version
}

// Artifact is a file produced by a run, persisted by the artifact collector
// and retrievable by (run id, filename).
type Artifact struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Filename    string    `json:"filename"`
	Key         string    `json:"key"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `json:"checksum"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
