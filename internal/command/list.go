// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"
)

// ListCommand lists the maps the remote map API holds.
type ListCommand struct {
	Meta
}

func (c *ListCommand) Run(args []string) int {
	ctx := c.context()

	var local bool
	cmdFlags := c.Meta.defaultFlagSet("list")
	cmdFlags.BoolVar(&local, "local", false, "local")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}

	var names []string
	if local {
		stores, err := c.openLocal(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error opening local storage: %s", err))
			return 1
		}
		defer stores.Close()
		names, err = stores.Store.Keys(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to list local maps: %s", err))
			return 1
		}
	} else {
		client, err := c.remoteClient(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error configuring remote: %s", err))
			return 1
		}
		if client == nil {
			c.Ui.Error("No remote address is configured. Set remote.address or MAPSYNC_REMOTE_ADDRESS, or use -local.")
			return 1
		}
		names, err = client.List(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to list maps: %s", err))
			return 1
		}
	}

	for _, name := range names {
		c.Ui.Output(name)
	}
	return 0
}

func (c *ListCommand) Help() string {
	helpText := `
Usage: mapsync [global options] list [options]

  List the names of the maps stored by the remote map API.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.

  -local        List the maps in local storage instead.
`
	return strings.TrimSpace(helpText)
}

func (c *ListCommand) Synopsis() string {
	return "List stored maps"
}
