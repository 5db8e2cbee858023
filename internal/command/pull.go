// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"

	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/resolver"
)

// PullCommand resolves a document the way an editor does when it opens,
// and prints it.
type PullCommand struct {
	Meta
}

func (c *PullCommand) Run(args []string) int {
	ctx := c.context()

	var name string
	var wire bool
	cmdFlags := c.Meta.defaultFlagSet("pull")
	cmdFlags.StringVar(&name, "name", "", "name")
	cmdFlags.BoolVar(&wire, "wire", false, "wire")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}

	cfg, err := c.Config()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading configuration: %s", err))
		return 1
	}
	if name == "" {
		name = cfg.Document
	}

	local, err := c.openLocal(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error opening local storage: %s", err))
		return 1
	}
	defer local.Close()

	client, err := c.remoteClient(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error configuring remote: %s", err))
		return 1
	}
	bundle, err := c.bundle(client)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	rcfg := resolver.Config{Name: name, Local: local.Store, Bundle: bundle}
	if client != nil {
		rcfg.Remote = client
	}
	doc, source, err := resolver.New(rcfg).ResolveOnOpen(ctx)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error resolving map %q: %s", name, err))
		return 1
	}
	if doc == nil {
		c.Ui.Error(fmt.Sprintf("No source has a map named %q.", name))
		return 1
	}

	encode := mapdoc.Encode
	if wire {
		encode = mapdoc.EncodeWire
	}
	data, err := encode(doc)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to encode map: %s", err))
		return 1
	}
	c.Ui.Info(fmt.Sprintf("Resolved map %q from %s.", name, strings.ToLower(strings.TrimPrefix(source.String(), "Source"))))
	c.Ui.Output(string(data))
	return 0
}

func (c *PullCommand) Help() string {
	helpText := `
Usage: mapsync [global options] pull [options]

  Find the current copy of a map and print it to stdout.

  The local storage is checked first, then the remote map API, then the
  static bundle. A map found remotely is saved to local storage so that
  the next pull is served locally.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.

  -name=name    Name of the map. Defaults to the configured document.

  -wire         Print chunks as an array of [id, payload] pairs, the form
                used by the map API.
`
	return strings.TrimSpace(helpText)
}

func (c *PullCommand) Synopsis() string {
	return "Resolve a map and output it to stdout"
}
