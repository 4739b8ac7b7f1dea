package skill

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rscheiwe/open-skills/internal/model"
)

// Bundle is a validated skill bundle on disk.
type Bundle struct {
	Dir      string
	Manifest *Manifest
	Checksum string
}

// LoadBundle reads and validates the bundle at dir: SKILL.md must parse and
// the entrypoint script must exist inside the bundle.
func LoadBundle(dir string) (*Bundle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle dir: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, invalid("", fmt.Sprintf("bundle dir %s: %v", dir, err))
	}
	if !info.IsDir() {
		return nil, invalid("", fmt.Sprintf("bundle path %s is not a directory", dir))
	}

	raw, err := os.ReadFile(filepath.Join(abs, manifestFilename))
	if err != nil {
		return nil, invalid("", fmt.Sprintf("missing %s: %v", manifestFilename, err))
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}

	script := filepath.Join(abs, filepath.FromSlash(m.EntrypointScript()))
	if info, err := os.Stat(script); err != nil || info.IsDir() {
		return nil, invalid("entrypoint", fmt.Sprintf("script %s not found in bundle", m.EntrypointScript()))
	}

	sum := sha256.Sum256(raw)
	return &Bundle{
		Dir:      abs,
		Manifest: m,
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// Version converts the bundle into a registry row with a fresh UUID.
func (b *Bundle) Version() *model.SkillVersion {
	m := b.Manifest
	return &model.SkillVersion{
		ID:           uuid.NewString(),
		SkillName:    m.Name,
		Version:      m.Version,
		Entrypoint:   m.Entrypoint,
		Description:  m.Description,
		Tags:         m.Tags,
		Inputs:       m.Inputs,
		Outputs:      m.Outputs,
		AllowNetwork: m.AllowNetwork,
		TimeoutS:     m.TimeoutSeconds,
		BundleDir:    b.Dir,
		Checksum:     b.Checksum,
	}
}
