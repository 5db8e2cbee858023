// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package config loads the mapsync configuration: built-in defaults, then
// an optional HCL file, then MAPSYNC_* environment variables, each
// overriding the last.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/opentofu/mapsync/internal/autosave"
	"github.com/opentofu/mapsync/internal/durable/filestore"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/tiered"
)

// EnvPrefix is the prefix of every environment variable read by [Load].
const EnvPrefix = "MAPSYNC_"

// Config is the complete configuration.
type Config struct {
	// Document is the name of the document the editor opens.
	Document string `env:"DOCUMENT"`

	Storage  Storage  `envPrefix:"STORAGE_"`
	AutoSave AutoSave `envPrefix:"AUTOSAVE_"`
	Remote   Remote   `envPrefix:"REMOTE_"`
	Peer     Peer     `envPrefix:"PEER_"`
	Server   Server   `envPrefix:"SERVER_"`
}

// Storage configures the local tiers.
type Storage struct {
	// Dir holds both local tiers. Empty means in-memory tiers.
	Dir string `env:"DIR"`

	// FastLimit is the byte quota of Tier A.
	FastLimit int64 `env:"FAST_LIMIT"`

	// Threshold is the largest document, in bytes, written to Tier A.
	Threshold int `env:"THRESHOLD"`
}

// AutoSave configures the debounce.
type AutoSave struct {
	Window time.Duration `env:"WINDOW"`
}

// Remote configures the map API client.
type Remote struct {
	// Address is the base URL of the map API. Empty disables the remote.
	Address  string            `env:"ADDRESS"`
	Retries  int               `env:"RETRIES"`
	Timeout  time.Duration     `env:"TIMEOUT"`
	Headers  map[string]string `env:"HEADERS"`
	Username string            `env:"USERNAME"`
	Password string            `env:"PASSWORD"`

	// Bundle, if set, is a local file used as the static fallback
	// instead of the one served by the remote.
	Bundle string `env:"BUNDLE"`
}

// Peer configures peer synchronization.
type Peer struct {
	// Relay is the URL of the peer relay. Empty disables peer sync.
	Relay  string `env:"RELAY"`
	Origin string `env:"ORIGIN"`
}

// Server configures "mapsync serve".
type Server struct {
	Listen string `env:"LISTEN"`

	// Backend selects the document store: memory, sqlite, postgres, s3
	// or consul.
	Backend string `env:"BACKEND"`

	// Path is the database file of the sqlite backend.
	Path string `env:"PATH"`

	ConnStr string `env:"CONN_STR"`
	Schema  string `env:"SCHEMA"`

	Bucket       string `env:"BUCKET"`
	Prefix       string `env:"PREFIX"`
	Region       string `env:"REGION"`
	Endpoint     string `env:"ENDPOINT"`
	UsePathStyle bool   `env:"USE_PATH_STYLE"`

	ConsulAddress string `env:"CONSUL_ADDRESS"`
	ConsulPath    string `env:"CONSUL_PATH"`
	ConsulToken   string `env:"CONSUL_TOKEN"`

	// Static is a directory served under /static/.
	Static string `env:"STATIC"`

	// AllowedOrigins may open peer connections in addition to the
	// server's own origin.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Document: mapdoc.DefaultName,
		Storage: Storage{
			Dir:       defaultStorageDir(),
			FastLimit: filestore.DefaultLimit,
			Threshold: tiered.DefaultThreshold,
		},
		AutoSave: AutoSave{
			Window: autosave.DefaultWindow,
		},
		Remote: Remote{
			Retries: 2,
			Timeout: 30 * time.Second,
		},
		Server: Server{
			Listen:  "127.0.0.1:8080",
			Backend: "sqlite",
			Path:    "mapsync-server.db",
		},
	}
}

func defaultStorageDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".mapsync"
	}
	return filepath.Join(dir, "mapsync")
}
