// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package peersync

import (
	"context"
	"fmt"
	"sync"

	"github.com/mitchellh/copystructure"
)

// Bus is an in-process [Transport] for editors that share one process.
//
// Every subscriber gets its own deep copy of each message, delivered on a
// new goroutine, so no two peers ever share document memory.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]func(Message)
	next uint64

	wg sync.WaitGroup
}

var _ Transport = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func(Message))}
}

func (b *Bus) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	subs := make([]func(Message), 0, len(b.subs))
	for _, h := range b.subs {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		raw, err := copystructure.Copy(msg)
		if err != nil {
			return fmt.Errorf("copying message: %w", err)
		}
		cp := raw.(Message)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			h(cp)
		}()
	}
	return nil
}

func (b *Bus) Subscribe(handler func(Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[uint64]func(Message))
	}
	id := b.next
	b.next++
	b.subs[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Wait blocks until every delivery started so far has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
