// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"
)

// AutoSaveCommand shows or changes the auto-save preference.
type AutoSaveCommand struct {
	Meta
}

func (c *AutoSaveCommand) Run(args []string) int {
	ctx := c.context()

	cmdFlags := c.Meta.defaultFlagSet("autosave")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}
	args = cmdFlags.Args()
	if len(args) > 1 {
		c.Ui.Error("At most one argument expected: on or off.\n")
		return 1
	}

	local, err := c.openLocal(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error opening local storage: %s", err))
		return 1
	}
	defer local.Close()
	p := c.preferences(ctx, local)

	if len(args) == 0 {
		c.Ui.Output(onOff(p.AutoSave()))
		return 0
	}

	var enabled bool
	switch args[0] {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		c.Ui.Error(fmt.Sprintf("Invalid value %q: expected on or off.", args[0]))
		return 1
	}
	if err := p.SetAutoSave(ctx, enabled); err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to save preference: %s", err))
		return 1
	}
	c.Ui.Output(fmt.Sprintf("Auto-save is %s.", onOff(enabled)))
	return 0
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *AutoSaveCommand) Help() string {
	helpText := `
Usage: mapsync [global options] autosave [on|off]

  Show or change whether editors save maps automatically shortly after
  each edit. The setting is kept in local storage and defaults to on.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.
`
	return strings.TrimSpace(helpText)
}

func (c *AutoSaveCommand) Synopsis() string {
	return "Show or change the auto-save preference"
}
