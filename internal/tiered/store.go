// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package tiered combines a small fast store and a larger transactional
// store into a single document store that picks a tier by document size.
//
// A document is only ever kept in one tier at a time: every successful
// write removes any copy of the same name from the other tier.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/tracing"
)

// DefaultThreshold is the largest encoded document, in bytes, that is
// written to Tier A.
const DefaultThreshold = 2 << 20

// Store is a [durable.Store] that spreads values across two tiers.
type Store struct {
	fast      durable.Store
	large     durable.Store
	threshold int
	logger    hclog.Logger
}

var _ durable.Store = (*Store)(nil)

// Option customizes a [Store].
type Option func(*Store)

// WithThreshold overrides [DefaultThreshold].
func WithThreshold(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithLogger sets the logger used to report recovered failures.
func WithLogger(l hclog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New returns a store that writes values of at most the threshold size to
// fast, and everything else to large.
func New(fast, large durable.Store, opts ...Option) *Store {
	s := &Store{
		fast:      fast,
		large:     large,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger(nil, "tiered")
	}
	return s
}

// Threshold returns the size limit for Tier A.
func (s *Store) Threshold() int {
	return s.threshold
}

// Save encodes doc and stores it under name, returning the tier it went to.
func (s *Store) Save(ctx context.Context, name string, doc *mapdoc.Document) (Tier, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Save document",
		tracing.SpanAttributes(tracing.DocumentName(name)),
	)
	defer span.End()

	data, err := mapdoc.Encode(doc)
	if err != nil {
		tracing.SetSpanError(span, err)
		return TierNone, fmt.Errorf("encoding document %q: %w", name, err)
	}
	span.SetAttributes(tracing.DocumentSize(len(data)))

	tier, err := s.PutTier(ctx, name, data)
	if err != nil {
		tracing.SetSpanError(span, err)
		return TierNone, err
	}
	span.SetAttributes(tracing.StorageTier(tier.String()))
	return tier, nil
}

// Load returns the document stored under name, trying Tier B before Tier A.
//
// A tier that fails to read, or that holds something that does not decode,
// is logged and skipped. If neither tier has a usable document the error
// wraps [durable.ErrNotFound].
func (s *Store) Load(ctx context.Context, name string) (*mapdoc.Document, Tier, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Load document",
		tracing.SpanAttributes(tracing.DocumentName(name)),
	)
	defer span.End()

	for _, t := range s.readOrder() {
		data, err := t.store.Get(ctx, name)
		if err != nil {
			if !durable.IsNotFound(err) {
				s.logger.Warn("failed to read tier, treating as absent", "tier", t.tier, "name", name, "error", err)
			}
			continue
		}
		doc, err := mapdoc.Decode(data)
		if err != nil {
			s.logger.Warn("ignoring undecodable document", "tier", t.tier, "name", name, "error", err)
			continue
		}
		span.SetAttributes(tracing.StorageTier(t.tier.String()))
		return doc, t.tier, nil
	}
	return nil, TierNone, durable.NotFoundError(name)
}

// Remove deletes name from both tiers.
func (s *Store) Remove(ctx context.Context, name string) error {
	return s.Delete(ctx, name)
}

// PutTier stores value under key and reports which tier now holds it.
//
// Values no larger than the threshold go to Tier A. If Tier A rejects the
// write, whether for capacity or any other reason, the value goes to Tier B
// instead and the Tier A error is only logged.
func (s *Store) PutTier(ctx context.Context, key string, value []byte) (Tier, error) {
	var errs *multierror.Error

	if len(value) <= s.threshold {
		err := s.fast.Put(ctx, key, value)
		if err == nil {
			if delErr := s.large.Delete(ctx, key); delErr != nil {
				// Tier B is read first, so a stale copy there would
				// shadow what we just wrote. Overwrite it instead.
				s.logger.Warn("failed to remove stale Tier B copy, writing there too", "name", key, "error", delErr)
				return s.putLarge(ctx, key, value, nil)
			}
			s.logger.Debug("stored value", "tier", TierA, "name", key, "size", len(value))
			return TierA, nil
		}
		if errors.Is(err, durable.ErrCapacityExceeded) {
			s.logger.Debug("Tier A is full, falling back to Tier B", "name", key, "size", len(value))
		} else {
			s.logger.Warn("Tier A write failed, falling back to Tier B", "name", key, "error", err)
		}
		errs = multierror.Append(errs, fmt.Errorf("tier A: %w", err))
	}

	return s.putLarge(ctx, key, value, errs)
}

func (s *Store) putLarge(ctx context.Context, key string, value []byte, errs *multierror.Error) (Tier, error) {
	if err := s.large.Put(ctx, key, value); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("tier B: %w", err))
		return TierNone, fmt.Errorf("storing %q: %w", key, errs.ErrorOrNil())
	}
	if err := s.fast.Delete(ctx, key); err != nil {
		// Harmless for reads since Tier B is consulted first.
		s.logger.Warn("failed to remove stale Tier A copy", "name", key, "error", err)
	}
	s.logger.Debug("stored value", "tier", TierB, "name", key, "size", len(value))
	return TierB, nil
}

// GetTier returns the value stored under key along with the tier that held
// it. Read failures are logged and treated as absence.
func (s *Store) GetTier(ctx context.Context, key string) ([]byte, Tier, error) {
	for _, t := range s.readOrder() {
		data, err := t.store.Get(ctx, key)
		if err == nil {
			return data, t.tier, nil
		}
		if !durable.IsNotFound(err) {
			s.logger.Warn("failed to read tier, treating as absent", "tier", t.tier, "name", key, "error", err)
		}
	}
	return nil, TierNone, durable.NotFoundError(key)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, _, err := s.GetTier(ctx, key)
	return data, err
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.PutTier(ctx, key, value)
	return err
}

// Delete removes key from both tiers. It attempts both deletes even if the
// first fails.
func (s *Store) Delete(ctx context.Context, key string) error {
	var errs *multierror.Error
	if err := s.large.Delete(ctx, key); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("tier B: %w", err))
	}
	if err := s.fast.Delete(ctx, key); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("tier A: %w", err))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

// Keys returns the union of the keys in both tiers. A tier that cannot be
// listed is skipped unless both fail.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var errs *multierror.Error
	var ret []string
	failed := 0
	for _, t := range s.readOrder() {
		keys, err := t.store.Keys(ctx)
		if err != nil {
			s.logger.Warn("failed to list tier", "tier", t.tier, "error", err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", t.tier, err))
			failed++
			continue
		}
		ret = append(ret, keys...)
	}
	if failed == 2 {
		return nil, errs.ErrorOrNil()
	}
	slices.Sort(ret)
	return slices.Compact(ret), nil
}

type tierStore struct {
	tier  Tier
	store durable.Store
}

func (s *Store) readOrder() []tierStore {
	return []tierStore{
		{TierB, s.large},
		{TierA, s.fast},
	}
}
