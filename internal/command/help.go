// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/cli"
)

// HelpFunc is a cli.HelpFunc that lists the commands with their synopses.
func HelpFunc(commands map[string]cli.CommandFactory) string {
	names := make([]string, 0, len(commands))
	maxKeyLen := 0
	for name := range commands {
		names = append(names, name)
		maxKeyLen = max(maxKeyLen, len(name))
	}
	slices.Sort(names)

	var buf bytes.Buffer
	for _, name := range names {
		cmd, err := commands[name]()
		if err != nil {
			panic(fmt.Sprintf("failed to load %q command: %s", name, err))
		}
		fmt.Fprintf(&buf, "  %s  %s\n", name+strings.Repeat(" ", maxKeyLen-len(name)), cmd.Synopsis())
	}

	helpText := fmt.Sprintf(`
Usage: mapsync [global options] <subcommand> [args]

Keeps map documents in step between local storage, a remote map API and
other editors of the same map.

Commands:
%s
Configuration is read from mapsync.hcl in the working directory, or the
file named by MAPSYNC_CONFIG_FILE, and can be overridden by MAPSYNC_*
environment variables.
`, buf.String())
	return strings.TrimSpace(helpText)
}
