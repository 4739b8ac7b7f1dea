package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/skill"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Check a skill bundle without publishing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
}

func runValidate(dir string) error {
	bundle, err := skill.LoadBundle(dir)
	if err != nil {
		return err
	}

	m := bundle.Manifest
	fmt.Printf("%s@%s: ok\n", m.Name, m.Version)
	fmt.Printf("  entrypoint: %s\n", m.Entrypoint)
	if m.Description != "" {
		fmt.Printf("  description: %s\n", m.Description)
	}
	printParams("inputs", m.Inputs)
	printParams("outputs", m.Outputs)
	if m.TimeoutSeconds != nil {
		fmt.Printf("  timeout: %ds\n", *m.TimeoutSeconds)
	}
	if m.AllowNetwork {
		fmt.Println("  network: allowed")
	}
	fmt.Printf("  checksum: %s\n", bundle.Checksum)
	return nil
}

func printParams(label string, params []model.ParamSpec) {
	if len(params) == 0 {
		return
	}
	fmt.Printf("  %s:\n", label)
	for _, p := range params {
		line := "    " + p.Name
		if p.Type != "" {
			line += " (" + p.Type + ")"
		}
		if p.Required {
			line += " required"
		}
		fmt.Println(line)
	}
}
