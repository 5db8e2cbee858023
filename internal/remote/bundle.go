// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/mapdoc"
)

// FileBundle reads the read-only fallback document from a filesystem,
// for editors that ship the bundle alongside the binary.
type FileBundle struct {
	Fs   afero.Fs
	Path string
}

// NewFileBundle returns a bundle reading path from the OS filesystem.
func NewFileBundle(path string) *FileBundle {
	return &FileBundle{Fs: afero.NewOsFs(), Path: path}
}

// LoadBundle reads and decodes the bundle. A missing file is reported with
// an error wrapping [durable.ErrNotFound].
func (b *FileBundle) LoadBundle(ctx context.Context) (*mapdoc.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.Fs, b.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, durable.NotFoundError(b.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	doc, err := mapdoc.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", b.Path, err)
	}
	return doc, nil
}
