package main

import (
	"os"

	"github.com/rscheiwe/open-skills/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
