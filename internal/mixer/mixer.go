// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package mixer implements AudioMixer (§4.2): the owner of all
// ParticipantStreams for one call, producing per-sender frames for
// selective forwarding and per-listener mix-minus frames for pull-model
// deployments, sharing one audio pull per tick across both paths.
package mixer

import (
	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/stream"
	"github.com/confmesh/core/internal/vad"
)

// SenderFrame is one stream's pulled frame for this tick, the unit the
// SFU broadcast path forwards (§4.2 step 4).
type SenderFrame struct {
	Handle    handle.Handle
	UserID    string
	Samples   []int16
	IsAmbient bool
}

// handleFlag is the mixer's preallocated (handle, is_ambient) snapshot
// entry (§3).
type handleFlag struct {
	handle    handle.Handle
	isAmbient bool
}

// Mixer owns every ParticipantStream for one call. It is not internally
// synchronized — the owning Call serializes all access behind its one
// exclusive lock (§5), matching the single most important concurrency
// contract in the subsystem: the lock covers pull+accumulate only, never
// the broadcast send.
type Mixer struct {
	streams map[handle.Handle]*stream.Stream
	logger  logging.Logger

	// Preallocated scratch, reused every tick via take-then-restore so
	// these buffers are not reallocated after warmup (§3, §9 design note).
	// Pulled frames, the sender-frame slice, the listener map and each
	// mix-minus output are still allocated fresh on every tick.
	tickCache     map[handle.Handle][]int16
	tickMixBuffer []int32
	tickHandles   []handleFlag
}

// New builds an empty Mixer.
func New(logger logging.Logger) *Mixer {
	return &Mixer{
		streams:       make(map[handle.Handle]*stream.Stream),
		logger:        logger,
		tickCache:     make(map[handle.Handle][]int16),
		tickMixBuffer: make([]int32, audio.FrameSize),
		tickHandles:   make([]handleFlag, 0, 8),
	}
}

// AddStream registers a ParticipantStream under its Handle.
func (m *Mixer) AddStream(s *stream.Stream) {
	m.streams[s.Handle()] = s
}

// RemoveStream unregisters and returns the stream for h, if present.
func (m *Mixer) RemoveStream(h handle.Handle) (*stream.Stream, bool) {
	s, ok := m.streams[h]
	if ok {
		delete(m.streams, h)
	}
	return s, ok
}

// Get returns the stream registered under h, if any.
func (m *Mixer) Get(h handle.Handle) (*stream.Stream, bool) {
	s, ok := m.streams[h]
	return s, ok
}

// Len reports the number of registered streams (real participants plus
// ambient sources).
func (m *Mixer) Len() int {
	return len(m.streams)
}

// RealParticipantCount reports the number of non-ambient streams.
func (m *Mixer) RealParticipantCount() int {
	n := 0
	for _, s := range m.streams {
		if !s.IsAmbient() {
			n++
		}
	}
	return n
}

// PushAudio routes inbound samples to the named stream, returning a
// completed utterance if the push closed an open human speech region.
func (m *Mixer) PushAudio(h handle.Handle, samples []int16) (*vad.Utterance, bool, error) {
	s, ok := m.streams[h]
	if !ok {
		return nil, false, nil
	}
	u, err := s.PushAudio(samples)
	return u, true, err
}

// TickResult is everything one tick produces: per-sender frames for the
// SFU broadcast path, and a ready-made mix-minus frame per non-ambient
// listener for pull-model deployments and tests.
type TickResult struct {
	SenderFrames  []SenderFrame
	ListenerMixes map[handle.Handle][]int16
}

// Tick runs the full per-tick algorithm exactly once (§4.2): pull one
// frame from every stream into the reused cache, snapshot the handle
// list, build per-sender frames, and compute each listener's mix-minus
// frame by summing every other non-listener sender (ambient sources are
// always summed in, never excluded, and never themselves a listener).
//
// Pulling more than once per tick would advance Ai ring buffers
// incorrectly; Tick is the only place PullFrame is ever called.
func (m *Mixer) Tick() TickResult {
	cache := m.tickCache
	clear(cache)
	handles := m.tickHandles[:0]

	for h, s := range m.streams {
		cache[h] = s.PullFrame()
		handles = append(handles, handleFlag{handle: h, isAmbient: s.IsAmbient()})
	}

	senderFrames := make([]SenderFrame, 0, len(handles))
	for _, hf := range handles {
		frame := cache[hf.handle]
		if len(frame) == 0 {
			continue
		}
		s := m.streams[hf.handle]
		senderFrames = append(senderFrames, SenderFrame{
			Handle:    hf.handle,
			UserID:    s.UserID(),
			Samples:   frame,
			IsAmbient: hf.isAmbient,
		})
	}

	listenerMixes := make(map[handle.Handle][]int16, len(handles))
	for _, listener := range handles {
		if listener.isAmbient {
			// Ambient handles never appear as listeners (§4.2 step 5).
			continue
		}
		listenerMixes[listener.handle] = m.mixMinus(cache, handles, listener.handle)
	}

	// Restore scratch for next tick; capacity is preserved by reuse.
	m.tickHandles = handles

	return TickResult{SenderFrames: senderFrames, ListenerMixes: listenerMixes}
}

// mixMinus sums every sender's cached frame except the listener's own
// into the reused i32 accumulator, then clamps to i16. Ambient sources
// are always summed regardless of the exclude handle.
func (m *Mixer) mixMinus(cache map[handle.Handle][]int16, handles []handleFlag, exclude handle.Handle) []int16 {
	acc := m.tickMixBuffer
	for i := range acc {
		acc[i] = 0
	}

	for _, hf := range handles {
		if hf.handle == exclude {
			continue
		}
		frame := cache[hf.handle]
		for i, v := range frame {
			if i >= len(acc) {
				break
			}
			acc[i] += int32(v)
		}
	}

	out := make([]int16, len(acc))
	for i, v := range acc {
		out[i] = audio.ClampToInt16(v)
	}
	return out
}
