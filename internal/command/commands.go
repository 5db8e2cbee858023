// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import "github.com/mitchellh/cli"

// Commands returns the factories for every mapsync command. Each command
// gets its own copy of meta.
func Commands(meta Meta) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"autosave": func() (cli.Command, error) {
			return &AutoSaveCommand{Meta: meta}, nil
		},
		"delete": func() (cli.Command, error) {
			return &DeleteCommand{Meta: meta}, nil
		},
		"list": func() (cli.Command, error) {
			return &ListCommand{Meta: meta}, nil
		},
		"pull": func() (cli.Command, error) {
			return &PullCommand{Meta: meta}, nil
		},
		"push": func() (cli.Command, error) {
			return &PushCommand{Meta: meta}, nil
		},
		"serve": func() (cli.Command, error) {
			return &ServeCommand{Meta: meta}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{Meta: meta}, nil
		},
		"watch": func() (cli.Command, error) {
			return &WatchCommand{Meta: meta}, nil
		},
	}
}
