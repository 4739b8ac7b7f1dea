// Package cli wires the open-skills commands: the API server plus local
// tooling for authoring, validating and publishing skill bundles.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute builds the command tree and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:          "open-skills",
		Short:        "Skill registry and sandboxed execution engine",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(initCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(runLocalCmd())
	root.AddCommand(publishCmd())

	return root.Execute()
}
