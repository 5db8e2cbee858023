// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/opentofu/mapsync/internal/peersync"
)

// WatchCommand prints what other editors of a document broadcast.
type WatchCommand struct {
	Meta
}

func (c *WatchCommand) Run(args []string) int {
	ctx := c.context()

	var name string
	var dump bool
	cmdFlags := c.Meta.defaultFlagSet("watch")
	cmdFlags.StringVar(&name, "name", "", "name")
	cmdFlags.BoolVar(&dump, "dump", false, "dump")
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
	if cfg.Peer.Relay == "" {
		c.Ui.Error("No peer relay is configured. Set peer.relay or MAPSYNC_PEER_RELAY.")
		return 1
	}

	ch, disconnect, err := c.peerChannel(ctx, name)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error connecting to relay: %s", err))
		return 1
	}
	defer disconnect()

	msgs := make(chan peersync.Message, 16)
	cancel := ch.OnReceive(func(msg peersync.Message) {
		select {
		case msgs <- msg:
		case <-ctx.Done():
		}
	})
	defer cancel()

	c.Ui.Info(fmt.Sprintf("Watching map %q. Interrupt to stop.", name))
	for {
		select {
		case <-ctx.Done():
			return 0
		case msg := <-msgs:
			c.Ui.Output(describeMessage(msg))
			if dump {
				c.Ui.Output(spew.Sdump(msg))
			}
		}
	}
}

func describeMessage(msg peersync.Message) string {
	switch msg.Kind {
	case peersync.KindFull:
		return fmt.Sprintf("%s: full document, %d chunks", msg.Sender, len(msg.Full.Chunks))
	case peersync.KindViewport:
		r := msg.Viewport
		return fmt.Sprintf("%s: viewport x=%g y=%g w=%g h=%g", msg.Sender, r.X, r.Y, r.W, r.H)
	default:
		return fmt.Sprintf("%s: %s", msg.Sender, msg.Kind)
	}
}

func (c *WatchCommand) Help() string {
	helpText := `
Usage: mapsync [global options] watch [options]

  Connect to the peer relay and print every full document and viewport
  broadcast for a map until interrupted.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.

  -name=name    Name of the map. Defaults to the configured document.

  -dump         Also print the complete contents of every message.
`
	return strings.TrimSpace(helpText)
}

func (c *WatchCommand) Synopsis() string {
	return "Print peer broadcasts for a map"
}
