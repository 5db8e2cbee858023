// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package durable

import (
	"context"
	"strings"
)

// WithPrefix returns a [Store] that stores every key in s with the given
// prefix prepended, and only lists the keys that carry it.
//
// This allows unrelated kinds of records, such as documents and
// preferences, to share one underlying store without colliding.
func WithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &prefixStore{inner: s, prefix: prefix}
}

type prefixStore struct {
	inner  Store
	prefix string
}

var _ Store = (*prefixStore)(nil)

func (p *prefixStore) Get(ctx context.Context, key string) ([]byte, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixStore) Put(ctx context.Context, key string, value []byte) error {
	return p.inner.Put(ctx, p.prefix+key, value)
}

func (p *prefixStore) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixStore) Keys(ctx context.Context) ([]string, error) {
	all, err := p.inner.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var ret []string
	for _, key := range all {
		if rest, ok := strings.CutPrefix(key, p.prefix); ok && rest != "" {
			ret = append(ret, rest)
		}
	}
	return ret, nil
}
