// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/opentofu/mapsync/version"
)

// VersionCommand is a Command implementation prints the version.
type VersionCommand struct {
	Meta
}

func (c *VersionCommand) Help() string {
	helpText := `
Usage: mapsync [global options] version

  Displays the version of mapsync and the storage and transport libraries
  it was built with.
`
	return strings.TrimSpace(helpText)
}

func (c *VersionCommand) Run(args []string) int {
	cmdFlags := c.Meta.defaultFlagSet("version")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}

	c.Ui.Output(fmt.Sprintf("mapsync v%s\non %s_%s", version.String(), runtime.GOOS, runtime.GOARCH))
	for _, mod := range version.InterestingDependencies() {
		c.Ui.Output(fmt.Sprintf("+ %s %s", mod.Path, mod.Version))
	}
	return 0
}

func (c *VersionCommand) Synopsis() string {
	return "Show the current mapsync version"
}
