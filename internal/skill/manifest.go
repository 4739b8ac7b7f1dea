package skill

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rscheiwe/open-skills/internal/model"
)

const manifestFilename = "SKILL.md"

var (
	// nameRE matches skill names: lowercase alphanumeric segments joined by
	// single hyphens.
	nameRE = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

	// versionRE matches semantic versions with an optional prerelease suffix.
	versionRE = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9\-.]+)?$`)

	// funcRE matches entrypoint function identifiers.
	funcRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidationError reports a violation of a skill's declared contract: a bad
// manifest, a bundle missing its entrypoint, or a payload that does not match
// the declared inputs or outputs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "skill validation: " + e.Reason
	}
	return fmt.Sprintf("skill validation: field %q: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// Manifest is the parsed YAML frontmatter of a SKILL.md plus the markdown
// body that follows it.
type Manifest struct {
	Name           string            `yaml:"name"`
	Version        string            `yaml:"version"`
	Entrypoint     string            `yaml:"entrypoint"`
	Description    string            `yaml:"description"`
	Tags           []string          `yaml:"tags"`
	Inputs         []model.ParamSpec `yaml:"inputs"`
	Outputs        []model.ParamSpec `yaml:"outputs"`
	AllowNetwork   bool              `yaml:"allow_network"`
	TimeoutSeconds *int              `yaml:"timeout_seconds"`
	Resources      []string          `yaml:"resources"`

	// Doc is the markdown documentation after the closing frontmatter
	// delimiter. Not part of the YAML.
	Doc string `yaml:"-"`
}

// SplitEntrypoint splits an entrypoint reference into its script path and
// function name ("scripts/main.py:run" -> "scripts/main.py", "run"). The
// function defaults to "run" when none is given.
func SplitEntrypoint(entrypoint string) (script, fn string) {
	script, fn, ok := strings.Cut(entrypoint, ":")
	if !ok || fn == "" {
		fn = "run"
	}
	return script, fn
}

// EntrypointScript returns the script path portion of the entrypoint.
func (m *Manifest) EntrypointScript() string {
	script, _ := SplitEntrypoint(m.Entrypoint)
	return script
}

// EntrypointFunc returns the function portion of the entrypoint, defaulting
// to "run" when none is given.
func (m *Manifest) EntrypointFunc() string {
	_, fn := SplitEntrypoint(m.Entrypoint)
	return fn
}

// ParseManifest parses SKILL.md content: YAML frontmatter between "---"
// delimiters, then markdown. Unknown frontmatter keys are rejected.
func ParseManifest(content []byte) (*Manifest, error) {
	s := string(content)
	if !strings.HasPrefix(s, "---\n") {
		return nil, invalid("", "SKILL.md must start with YAML frontmatter (---)")
	}
	rest := s[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, invalid("", "SKILL.md frontmatter is not terminated by ---")
	}
	front := rest[:end]
	doc := rest[end+4:]
	if i := strings.IndexByte(doc, '\n'); i >= 0 {
		doc = doc[i+1:]
	} else {
		doc = ""
	}

	var m Manifest
	dec := yaml.NewDecoder(strings.NewReader(front))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, invalid("", fmt.Sprintf("invalid YAML frontmatter: %v", err))
	}
	m.Doc = strings.TrimSpace(doc)

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return invalid("name", "required")
	}
	if !nameRE.MatchString(m.Name) {
		return invalid("name", "must be lowercase alphanumeric segments joined by hyphens")
	}
	if m.Version == "" {
		return invalid("version", "required")
	}
	if !versionRE.MatchString(m.Version) {
		return invalid("version", fmt.Sprintf("%q is not a semantic version (e.g. 1.0.0)", m.Version))
	}
	if m.Entrypoint == "" {
		return invalid("entrypoint", "required")
	}
	script := m.EntrypointScript()
	if script == "" {
		return invalid("entrypoint", "missing script path")
	}
	if path.IsAbs(script) || strings.HasPrefix(path.Clean(script), "..") {
		return invalid("entrypoint", "script path must stay inside the bundle")
	}
	if !strings.HasSuffix(script, ".py") {
		return invalid("entrypoint", "script must be a .py file")
	}
	if !funcRE.MatchString(m.EntrypointFunc()) {
		return invalid("entrypoint", fmt.Sprintf("%q is not a valid function name", m.EntrypointFunc()))
	}
	if m.TimeoutSeconds != nil && *m.TimeoutSeconds <= 0 {
		return invalid("timeout_seconds", "must be positive")
	}
	if err := validateParams("inputs", m.Inputs); err != nil {
		return err
	}
	if err := validateParams("outputs", m.Outputs); err != nil {
		return err
	}
	return nil
}

func validateParams(field string, params []model.ParamSpec) error {
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return invalid(field, "every entry needs a name")
		}
		if seen[p.Name] {
			return invalid(field, fmt.Sprintf("duplicate entry %q", p.Name))
		}
		seen[p.Name] = true
		if p.Type != "" && !model.ValidParamType(p.Type) {
			return invalid(field, fmt.Sprintf("entry %q has unknown type %q", p.Name, p.Type))
		}
	}
	return nil
}
