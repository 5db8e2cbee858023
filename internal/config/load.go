// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/spf13/afero"
)

// DefaultFilename is read from the working directory when no file is
// named explicitly.
const DefaultFilename = "mapsync.hcl"

// FileEnvVar names a configuration file that replaces [DefaultFilename].
const FileEnvVar = "MAPSYNC_CONFIG_FILE"

// file is the shape of the HCL configuration file. Every block and
// attribute is optional; anything left out keeps its default.
type file struct {
	Document *string `hcl:"document,optional"`

	Storage  *fileStorage  `hcl:"storage,block"`
	AutoSave *fileAutoSave `hcl:"autosave,block"`
	Remote   *fileRemote   `hcl:"remote,block"`
	Peer     *filePeer     `hcl:"peer,block"`
	Server   *fileServer   `hcl:"server,block"`
}

type fileStorage struct {
	Dir       *string `hcl:"dir,optional"`
	FastLimit *int64  `hcl:"fast_limit,optional"`
	Threshold *int    `hcl:"threshold,optional"`
}

type fileAutoSave struct {
	Window *string `hcl:"window,optional"`
}

type fileRemote struct {
	Address  *string           `hcl:"address,optional"`
	Retries  *int              `hcl:"retries,optional"`
	Timeout  *string           `hcl:"timeout,optional"`
	Headers  map[string]string `hcl:"headers,optional"`
	Username *string           `hcl:"username,optional"`
	Password *string           `hcl:"password,optional"`
	Bundle   *string           `hcl:"bundle,optional"`
}

type filePeer struct {
	Relay  *string `hcl:"relay,optional"`
	Origin *string `hcl:"origin,optional"`
}

type fileServer struct {
	Listen         *string  `hcl:"listen,optional"`
	Backend        *string  `hcl:"backend,optional"`
	Path           *string  `hcl:"path,optional"`
	ConnStr        *string  `hcl:"conn_str,optional"`
	Schema         *string  `hcl:"schema,optional"`
	Bucket         *string  `hcl:"bucket,optional"`
	Prefix         *string  `hcl:"prefix,optional"`
	Region         *string  `hcl:"region,optional"`
	Endpoint       *string  `hcl:"endpoint,optional"`
	UsePathStyle   *bool    `hcl:"use_path_style,optional"`
	ConsulAddress  *string  `hcl:"consul_address,optional"`
	ConsulPath     *string  `hcl:"consul_path,optional"`
	ConsulToken    *string  `hcl:"consul_token,optional"`
	Static         *string  `hcl:"static,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`
}

// Load builds the configuration from the defaults, the configuration file
// at path and the environment. An empty path means the file named by
// MAPSYNC_CONFIG_FILE, or else [DefaultFilename] if it exists.
func Load(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p := os.Getenv(FileEnvVar); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultFilename
		}
	}

	src, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		log.Printf("[TRACE] config: no %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("reading configuration: %w", err)
	default:
		log.Printf("[DEBUG] config: loading %s", path)
		if err := cfg.decodeFile(path, src); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("reading configuration from the environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c *Config) decodeFile(filename string, src []byte) error {
	f, diags := hclsyntax.ParseConfig(src, filename, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return diags
	}
	var raw file
	if diags := gohcl.DecodeBody(f.Body, nil, &raw); diags.HasErrors() {
		return diags
	}
	return c.merge(&raw)
}

func (c *Config) merge(f *file) error {
	set(&c.Document, f.Document)

	if s := f.Storage; s != nil {
		set(&c.Storage.Dir, s.Dir)
		set(&c.Storage.FastLimit, s.FastLimit)
		set(&c.Storage.Threshold, s.Threshold)
	}
	if a := f.AutoSave; a != nil {
		if err := setDuration(&c.AutoSave.Window, a.Window, "autosave.window"); err != nil {
			return err
		}
	}
	if r := f.Remote; r != nil {
		set(&c.Remote.Address, r.Address)
		set(&c.Remote.Retries, r.Retries)
		if err := setDuration(&c.Remote.Timeout, r.Timeout, "remote.timeout"); err != nil {
			return err
		}
		if r.Headers != nil {
			c.Remote.Headers = r.Headers
		}
		set(&c.Remote.Username, r.Username)
		set(&c.Remote.Password, r.Password)
		set(&c.Remote.Bundle, r.Bundle)
	}
	if p := f.Peer; p != nil {
		set(&c.Peer.Relay, p.Relay)
		set(&c.Peer.Origin, p.Origin)
	}
	if s := f.Server; s != nil {
		set(&c.Server.Listen, s.Listen)
		set(&c.Server.Backend, s.Backend)
		set(&c.Server.Path, s.Path)
		set(&c.Server.ConnStr, s.ConnStr)
		set(&c.Server.Schema, s.Schema)
		set(&c.Server.Bucket, s.Bucket)
		set(&c.Server.Prefix, s.Prefix)
		set(&c.Server.Region, s.Region)
		set(&c.Server.Endpoint, s.Endpoint)
		set(&c.Server.UsePathStyle, s.UsePathStyle)
		set(&c.Server.ConsulAddress, s.ConsulAddress)
		set(&c.Server.ConsulPath, s.ConsulPath)
		set(&c.Server.ConsulToken, s.ConsulToken)
		set(&c.Server.Static, s.Static)
		if s.AllowedOrigins != nil {
			c.Server.AllowedOrigins = s.AllowedOrigins
		}
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, name string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Document == "" {
		errs = append(errs, errors.New("document name must not be empty"))
	}
	if c.Storage.Threshold <= 0 {
		errs = append(errs, errors.New("storage.threshold must be positive"))
	}
	if c.Storage.FastLimit < 0 {
		errs = append(errs, errors.New("storage.fast_limit must not be negative"))
	}
	if c.AutoSave.Window <= 0 {
		errs = append(errs, errors.New("autosave.window must be positive"))
	}
	if c.Remote.Retries < 0 {
		errs = append(errs, errors.New("remote.retries must not be negative"))
	}
	switch c.Server.Backend {
	case "memory", "sqlite", "postgres", "s3", "consul":
	default:
		errs = append(errs, fmt.Errorf("unsupported server.backend %q", c.Server.Backend))
	}
	return errors.Join(errs...)
}
