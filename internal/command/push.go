// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/session"
	"github.com/opentofu/mapsync/internal/viewport"
)

// PushCommand saves a document file through the same pipeline an editor
// uses: local tiers and remote at once, then a broadcast to peers.
type PushCommand struct {
	Meta
}

func (c *PushCommand) Run(args []string) int {
	ctx := c.context()

	var name string
	cmdFlags := c.Meta.defaultFlagSet("push")
	cmdFlags.StringVar(&name, "name", "", "name")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}
	args = cmdFlags.Args()
	if len(args) != 1 {
		c.Ui.Error("Exactly one argument expected: the path to a map file.\n")
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

	src, err := afero.ReadFile(c.fs(), args[0])
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error reading map file: %s", err))
		return 1
	}
	doc, err := mapdoc.Decode(src)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid map file %s: %s", args[0], err))
		return 1
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
	peers, disconnect, err := c.peerChannel(ctx, name)
	if err != nil {
		c.Ui.Warn(fmt.Sprintf("Peers will not be notified: %s", err))
	} else {
		defer disconnect()
	}

	scfg := session.Config{
		Name:   name,
		Core:   staticCore{doc},
		Local:  local.Store,
		Peers:  peers,
		Status: func(msg string) { c.Ui.Info(msg) },
	}
	if client != nil {
		scfg.Remote = client
	}
	if err := session.New(scfg).SaveAs(ctx, name); err != nil {
		c.Ui.Error(fmt.Sprintf("Failed to push map %q: %s", name, err))
		return 1
	}
	return 0
}

func (c *PushCommand) Help() string {
	helpText := `
Usage: mapsync [global options] push [options] FILE

  Save the map in FILE to local storage and, if configured, to the remote
  map API, then send it to any editors that have it open.

  FILE may use either chunk form: an object keyed by chunk id, or an array
  of [id, payload] pairs.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.

  -name=name    Name to save the map under. Defaults to the configured
                document.
`
	return strings.TrimSpace(helpText)
}

func (c *PushCommand) Synopsis() string {
	return "Save a map file locally and remotely"
}

// staticCore is an editor that only ever shows one document.
type staticCore struct {
	doc *mapdoc.Document
}

func (s staticCore) Serialize() *mapdoc.Document { return s.doc }

func (staticCore) LoadData(*mapdoc.Document) {}

func (staticCore) ViewportWorldRect() (viewport.Rect, bool) { return viewport.Rect{}, false }
