// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package consulstore is a [durable.Store] that keeps values in the Consul
// key/value store.
package consulstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/opentofu/mapsync/internal/durable"
)

// DefaultLimit is Consul's default maximum value size.
const DefaultLimit = 512 << 10

// KV is the subset of the Consul KV API that [Store] uses.
type KV interface {
	Get(key string, q *consulapi.QueryOptions) (*consulapi.KVPair, *consulapi.QueryMeta, error)
	Put(p *consulapi.KVPair, q *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
	Delete(key string, w *consulapi.WriteOptions) (*consulapi.WriteMeta, error)
	Keys(prefix, separator string, q *consulapi.QueryOptions) ([]string, *consulapi.QueryMeta, error)
}

// Config describes where a [Store] keeps its data.
type Config struct {
	Address    string
	Scheme     string
	Datacenter string
	Token      string

	// Path is the key prefix under which all values are stored.
	Path string

	// Gzip compresses values before storing them, which lets larger
	// documents fit under Limit.
	Gzip bool

	// Limit is the largest stored value size, after compression, that the
	// store will attempt to write. Zero means [DefaultLimit].
	Limit int64
}

// Store maps each key to the Consul key Path+"/"+key.
type Store struct {
	kv    KV
	path  string
	gzip  bool
	limit int64
}

var _ durable.Store = (*Store)(nil)

// New connects to the configured Consul agent.
func New(cfg Config) (*Store, error) {
	apiCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Scheme != "" {
		apiCfg.Scheme = cfg.Scheme
	}
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	}
	client, err := consulapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return NewWithKV(client.KV(), cfg), nil
}

// NewWithKV returns a store that uses the given KV client. Only the path,
// gzip and limit settings of cfg are used.
func NewWithKV(kv KV, cfg Config) *Store {
	path := strings.Trim(cfg.Path, "/")
	if path == "" {
		path = "mapsync"
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{kv: kv, path: path + "/", gzip: cfg.Gzip, limit: limit}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	pair, _, err := s.kv.Get(s.path+key, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if pair == nil {
		return nil, durable.NotFoundError(key)
	}
	return uncompress(pair.Value)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := durable.ValidateKey(key); err != nil {
		return err
	}
	stored := value
	if s.gzip {
		var err error
		stored, err = compress(value)
		if err != nil {
			return fmt.Errorf("compressing %q: %w", key, err)
		}
	}
	if size := int64(len(stored)); size > s.limit {
		return &durable.CapacityError{Key: key, Size: size, Limit: s.limit}
	}

	pair := &consulapi.KVPair{Key: s.path + key, Value: stored}
	if _, err := s.kv.Put(pair, (&consulapi.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.kv.Delete(s.path+key, (&consulapi.WriteOptions{}).WithContext(ctx)); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, _, err := s.kv.Keys(s.path, "", (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	var ret []string
	for _, k := range keys {
		// Consul should ensure this but it doesn't hurt to check again
		if rest, ok := strings.CutPrefix(k, s.path); ok && rest != "" {
			ret = append(ret, rest)
		}
	}
	return ret, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// uncompress accepts both compressed and plain values, so that turning
// the Gzip setting on or off does not strand existing data.
func uncompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
