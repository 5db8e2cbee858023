// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"

	"github.com/opentofu/mapsync/internal/durable"
)

// DeleteCommand deletes a map by name.
type DeleteCommand struct {
	Meta
}

func (c *DeleteCommand) Run(args []string) int {
	ctx := c.context()

	var local bool
	cmdFlags := c.Meta.defaultFlagSet("delete")
	cmdFlags.BoolVar(&local, "local", false, "local")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}
	args = cmdFlags.Args()
	if len(args) != 1 {
		c.Ui.Error("Exactly one argument expected: the name of the map to delete.\n")
		return 1
	}
	name := args[0]

	client, err := c.remoteClient(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error configuring remote: %s", err))
		return 1
	}
	if client == nil && !local {
		c.Ui.Error("No remote address is configured. Set remote.address or MAPSYNC_REMOTE_ADDRESS, or use -local.")
		return 1
	}

	if client != nil {
		err := client.Delete(ctx, name)
		switch {
		case durable.IsNotFound(err):
			c.Ui.Warn(fmt.Sprintf("The remote has no map named %q.", name))
		case err != nil:
			c.Ui.Error(fmt.Sprintf("Failed to delete map %q: %s", name, err))
			return 1
		default:
			c.Ui.Info(fmt.Sprintf("Deleted map %q from the remote.", name))
		}
	}

	if local {
		stores, err := c.openLocal(ctx)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error opening local storage: %s", err))
			return 1
		}
		defer stores.Close()
		if err := stores.Store.Remove(ctx, name); err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to delete local map %q: %s", name, err))
			return 1
		}
		c.Ui.Info(fmt.Sprintf("Deleted map %q from local storage.", name))
	}
	return 0
}

func (c *DeleteCommand) Help() string {
	helpText := `
Usage: mapsync [global options] delete [options] NAME

  Delete the map NAME from the remote map API.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.

  -local        Also delete the map from local storage. Without a remote,
                only local storage is affected.
`
	return strings.TrimSpace(helpText)
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a stored map"
}
