// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package call

import (
	"sync"

	"github.com/confmesh/core/internal/logging"
)

// broadcast is a lossy fan-out channel: every subscriber gets its own
// buffered channel, and publishing is always non-blocking — a full
// subscriber buffer means that subscriber is far behind, and the frame
// is dropped for it (logged) rather than backpressuring the publisher
// (§5 backpressure discipline: "broadcast-full drops the frame").
type broadcast[T any] struct {
	mu       sync.RWMutex
	subs     map[int]chan T
	nextID   int
	capacity int
	name     string
	logger   logging.Logger
}

func newBroadcast[T any](capacity int, name string, logger logging.Logger) *broadcast[T] {
	return &broadcast[T]{
		subs:     make(map[int]chan T),
		capacity: capacity,
		name:     name,
		logger:   logger,
	}
}

// Subscribe registers a new receiver and returns its id (for Unsubscribe)
// and the receive-only channel.
func (b *broadcast[T]) Subscribe() (int, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan T, b.capacity)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes the subscriber channel for id.
func (b *broadcast[T]) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans v out to every current subscriber without blocking.
func (b *broadcast[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.logger.Warnw("call: broadcast channel full, dropping frame",
				"channel", b.name, "subscriber_id", id)
		}
	}
}

// SubscriberCount reports how many receivers are currently registered.
func (b *broadcast[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
