package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rscheiwe/open-skills/internal/skill"
)

const manifestTemplate = `---
name: %s
version: 0.1.0
entrypoint: scripts/main.py:run
description: Describe what %s does.
inputs:
  - name: text
    type: string
    required: true
outputs:
  - name: result
    type: string
---

# %s

Explain what this skill does, what inputs it expects and what it returns.
`

const scriptTemplate = `async def run(payload):
    text = payload["text"]
    return {"result": text.upper()}
`

func initCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init <dir>",
		Short: "Scaffold a new skill bundle",
		Long: `Creates a SKILL.md manifest and a scripts/main.py entrypoint in the
given directory. The skill name defaults to the directory name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "skill name (defaults to the directory name)")
	return cmd
}

func runInit(dir, name string) error {
	if name == "" {
		name = filepath.Base(filepath.Clean(dir))
	}

	manifest := fmt.Sprintf(manifestTemplate, name, name, name)
	if _, err := skill.ParseManifest([]byte(manifest)); err != nil {
		return fmt.Errorf("cannot scaffold skill named %q: %w", name, err)
	}

	manifestPath := filepath.Join(dir, "SKILL.md")
	if _, err := os.Stat(manifestPath); err == nil {
		return fmt.Errorf("%s already exists", manifestPath)
	}

	if err := os.MkdirAll(filepath.Join(dir, "scripts"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "scripts", "main.py"), []byte(scriptTemplate), 0o644); err != nil {
		return err
	}

	fmt.Printf("Initialized skill %q in %s\n", name, dir)
	fmt.Printf("Edit SKILL.md and scripts/main.py, then check it with: open-skills validate %s\n", dir)
	return nil
}
