// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"strings"

	"github.com/spf13/afero"

	"github.com/opentofu/mapsync/internal/config"
	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/durable/consulstore"
	"github.com/opentofu/mapsync/internal/durable/inmem"
	"github.com/opentofu/mapsync/internal/durable/pgstore"
	"github.com/opentofu/mapsync/internal/durable/s3store"
	"github.com/opentofu/mapsync/internal/durable/sqlitestore"
	"github.com/opentofu/mapsync/internal/mapserver"
	"github.com/opentofu/mapsync/internal/peersync"
)

// ServeCommand runs the map API, the static bundle and the peer relay.
type ServeCommand struct {
	Meta

	// ready, if set, receives the listening address. Used by tests.
	ready func(net.Addr)
}

func (c *ServeCommand) Run(args []string) int {
	ctx := c.context()

	var listen string
	cmdFlags := c.Meta.defaultFlagSet("serve")
	cmdFlags.StringVar(&listen, "listen", "", "listen")
	if err := cmdFlags.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s\n", err.Error()))
		return 1
	}

	cfg, err := c.Config()
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading configuration: %s", err))
		return 1
	}
	if listen == "" {
		listen = cfg.Server.Listen
	}

	store, closer, err := openServerStore(ctx, cfg.Server)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error opening %s store: %s", cfg.Server.Backend, err))
		return 1
	}
	if closer != nil {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Printf("[WARN] closing %s store: %s", cfg.Server.Backend, err)
			}
		}()
	}

	scfg := mapserver.Config{
		Store: store,
		Relay: peersync.NewRelay(cfg.Server.AllowedOrigins...),
	}
	if cfg.Server.Static != "" {
		scfg.Static = afero.NewBasePathFs(c.fs(), cfg.Server.Static)
	}

	ready := c.ready
	if ready == nil {
		ready = func(addr net.Addr) {
			c.Ui.Output(fmt.Sprintf("Serving maps on http://%s/ using the %s backend.", addr, cfg.Server.Backend))
		}
	}
	if err := mapserver.New(scfg).ListenAndServe(ctx, listen, ready); err != nil {
		c.Ui.Error(fmt.Sprintf("Server failed: %s", err))
		return 1
	}
	return 0
}

// openServerStore opens the configured backend. The closer is nil for
// backends that hold no resources.
func openServerStore(ctx context.Context, cfg config.Server) (durable.Store, io.Closer, error) {
	log.Printf("[DEBUG] Opening %s store", cfg.Backend)
	switch cfg.Backend {
	case "memory":
		return inmem.New(0), nil, nil
	case "sqlite":
		s, err := sqlitestore.Open(ctx, cfg.Path, 0)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "postgres":
		s, err := pgstore.Open(ctx, pgstore.Config{
			ConnStr:    cfg.ConnStr,
			SchemaName: cfg.Schema,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "s3":
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:       cfg.Bucket,
			Prefix:       cfg.Prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "consul":
		s, err := consulstore.New(consulstore.Config{
			Address: cfg.ConsulAddress,
			Token:   cfg.ConsulToken,
			Path:    cfg.ConsulPath,
			Gzip:    true,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func (c *ServeCommand) Help() string {
	helpText := `
Usage: mapsync [global options] serve [options]

  Serve the map API, the static fallback bundle and the peer relay until
  interrupted.

  Documents are kept in the backend selected by server.backend: memory,
  sqlite, postgres, s3 or consul.

Options:

  -config=path  Configuration file to use instead of mapsync.hcl.

  -listen=addr  Address to listen on. Defaults to server.listen.
`
	return strings.TrimSpace(helpText)
}

func (c *ServeCommand) Synopsis() string {
	return "Run the map API server"
}
