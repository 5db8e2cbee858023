// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package resolver decides which copy of a document an editor should open.
//
// Sources are tried in a fixed order: the local tiers, then the remote API,
// then the static bundle. The first source that produces a document wins.
// Documents that did not come from the local tiers are written back to them
// so that the next open is served locally.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/tiered"
	"github.com/opentofu/mapsync/internal/tracing"
)

// LocalStore is the subset of [tiered.Store] the resolver needs.
type LocalStore interface {
	Load(ctx context.Context, name string) (*mapdoc.Document, tiered.Tier, error)
	Save(ctx context.Context, name string, doc *mapdoc.Document) (tiered.Tier, error)
}

// RemoteLoader loads a named document from the network. It is satisfied by
// [remote.Client].
type RemoteLoader interface {
	Load(ctx context.Context, name string) (*mapdoc.Document, error)
}

// BundleLoader loads the read-only fallback document. It is satisfied by
// [remote.Client] and [remote.FileBundle].
type BundleLoader interface {
	LoadBundle(ctx context.Context) (*mapdoc.Document, error)
}

// ParamSink receives the procedural parameters of every resolved document
// that carries them.
type ParamSink func(param json.RawMessage)

// Config holds the collaborators of a [Resolver]. Only Local is required.
type Config struct {
	Name   string
	Local  LocalStore
	Remote RemoteLoader
	Bundle BundleLoader
	Params ParamSink
	Logger hclog.Logger
}

// Resolver resolves the document named in its [Config].
type Resolver struct {
	name   string
	local  LocalStore
	remote RemoteLoader
	bundle BundleLoader
	params ParamSink
	logger hclog.Logger

	group singleflight.Group
}

// New returns a resolver for cfg.
func New(cfg Config) *Resolver {
	r := &Resolver{
		name:   cfg.Name,
		local:  cfg.Local,
		remote: cfg.Remote,
		bundle: cfg.Bundle,
		params: cfg.Params,
		logger: cfg.Logger,
	}
	if r.name == "" {
		r.name = mapdoc.DefaultName
	}
	if r.logger == nil {
		r.logger = logging.NewLogger(nil, "resolver")
	}
	return r
}

// Name returns the name of the document this resolver opens.
func (r *Resolver) Name() string {
	return r.name
}

type resolution struct {
	doc    *mapdoc.Document
	source Source
}

// ResolveOnOpen returns the current document and where it came from.
//
// Source failures are never returned. If no source has a document the
// result is (nil, SourceNone, nil) and the caller should start from an
// empty document. The only error is the context's, when it ends before a
// document is found.
//
// Concurrent calls share a single resolution, which is detached from the
// callers' contexts: a caller that gives up only stops waiting for it.
// Each caller gets its own copy of the document.
func (r *Resolver) ResolveOnOpen(ctx context.Context) (*mapdoc.Document, Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, SourceNone, err
	}
	ch := r.group.DoChan(r.name, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx)), nil
	})
	select {
	case <-ctx.Done():
		return nil, SourceNone, ctx.Err()
	case ret := <-ch:
		res := ret.Val.(resolution)
		doc := res.doc
		if ret.Shared && doc != nil {
			doc = doc.Clone()
		}
		return doc, res.source, nil
	}
}

func (r *Resolver) resolve(ctx context.Context) resolution {
	ctx, span := tracing.Tracer().Start(ctx, "Resolve document",
		tracing.SpanAttributes(tracing.DocumentName(r.name)),
	)
	defer span.End()

	var errs *multierror.Error

	doc, tier, err := r.local.Load(ctx, r.name)
	switch {
	case err == nil:
		r.logger.Debug("resolved document from local tiers", "name", r.name, "tier", tier)
		return r.found(span, doc, SourceLocal)
	case !durable.IsNotFound(err):
		errs = multierror.Append(errs, fmt.Errorf("local tiers: %w", err))
	}

	type fallback struct {
		source Source
		load   func(context.Context) (*mapdoc.Document, error)
	}
	var fallbacks []fallback
	if r.remote != nil {
		fallbacks = append(fallbacks, fallback{SourceRemote, func(ctx context.Context) (*mapdoc.Document, error) {
			return r.remote.Load(ctx, r.name)
		}})
	}
	if r.bundle != nil {
		fallbacks = append(fallbacks, fallback{SourceStatic, r.bundle.LoadBundle})
	}

	for _, f := range fallbacks {
		doc, err := f.load(ctx)
		if err != nil {
			if !durable.IsNotFound(err) {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", f.source, err))
			}
			continue
		}
		r.logger.Debug("resolved document", "name", r.name, "source", f.source)
		r.Promote(ctx, doc)
		return r.found(span, doc, f.source)
	}

	if err := errs.ErrorOrNil(); err != nil {
		r.logger.Warn("no source could provide the document", "name", r.name, "error", err)
	} else {
		r.logger.Info("no document found, starting empty", "name", r.name)
	}
	span.SetAttributes(tracing.Source(SourceNone.String()))
	return resolution{source: SourceNone}
}

func (r *Resolver) found(span tracing.Span, doc *mapdoc.Document, source Source) resolution {
	span.SetAttributes(tracing.Source(source.String()))
	if r.params != nil && doc.HasProceduralParam() {
		r.params(doc.ProceduralParam)
	}
	return resolution{doc: doc, source: source}
}

// Promote writes doc into the local tiers under the resolver's name. A
// failure is logged and reported as false; it never fails an open.
// Promoting the same document again leaves the store unchanged.
func (r *Resolver) Promote(ctx context.Context, doc *mapdoc.Document) bool {
	tier, err := r.local.Save(ctx, r.name, doc)
	if err != nil {
		r.logger.Warn("failed to write resolved document to local tiers", "name", r.name, "error", err)
		return false
	}
	r.logger.Debug("promoted document to local tiers", "name", r.name, "tier", tier)
	return true
}
