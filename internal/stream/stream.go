// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package stream implements ParticipantStream (§4.1): the per-participant
// holder of either a fixed live frame (human microphone) or a large ring
// buffer (synthetic "Ai" participant, or an operator-spawned Ambient
// source), plus an optional two-stage VAD for the human case.
//
// Stream is not internally synchronized: the owning AudioMixer/Call holds
// one exclusive lock around every PushAudio/PullFrame call for the
// duration of a tick (§5 — "Each Call is behind one write lock covering
// its mixer"), so Stream itself stays allocation-light and lock-free.
package stream

import (
	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/vad"
)

// Kind distinguishes the three ParticipantStream variants (§3).
type Kind int

const (
	KindHuman Kind = iota
	KindAi
	KindAmbient
)

// Stream is one participant's (or ambient source's) audio state.
type Stream struct {
	handle      handle.Handle
	userID      string
	displayName string
	kind        Kind
	muted       bool

	// Human fields.
	liveFrame  []int16
	frameLen   int
	detector   *vad.Detector
	isSpeaking bool

	// Ai/Ambient ring buffer fields.
	ring      []int16
	readPos   int
	writePos  int
	available int

	logger logging.Logger
}

// NewHuman builds a human ParticipantStream with a fixed live frame and a
// VAD. newStage2 is forwarded to vad.New and may fail tolerantly (§4.1).
func NewHuman(h handle.Handle, userID, displayName string, vadCfg vad.Config, newStage2 func(vad.Config) (vad.Stage2, error), logger logging.Logger) *Stream {
	return &Stream{
		handle:      h,
		userID:      userID,
		displayName: displayName,
		kind:        KindHuman,
		liveFrame:   make([]int16, audio.FrameSize),
		detector:    vad.New(vadCfg, logger, newStage2),
		logger:      logger,
	}
}

// NewAi builds a synthetic model-backed ParticipantStream with a ~60s
// ring buffer and no VAD (§3).
func NewAi(h handle.Handle, userID, displayName string, logger logging.Logger) *Stream {
	return &Stream{
		handle:      h,
		userID:      userID,
		displayName: displayName,
		kind:        KindAi,
		ring:        make([]int16, audio.RingCapacitySamples),
		logger:      logger,
	}
}

// NewAmbient builds an operator-spawned ambient source: identical
// buffering to Ai, flagged so the mixer never excludes it from a mix and
// never treats it as a listener (§3).
func NewAmbient(h handle.Handle, sourceName string, logger logging.Logger) *Stream {
	return &Stream{
		handle:      h,
		userID:      sourceName,
		displayName: sourceName,
		kind:        KindAmbient,
		ring:        make([]int16, audio.RingCapacitySamples),
		logger:      logger,
	}
}

func (s *Stream) Handle() handle.Handle   { return s.handle }
func (s *Stream) UserID() string          { return s.userID }
func (s *Stream) DisplayName() string     { return s.displayName }
func (s *Stream) Kind() Kind              { return s.kind }
func (s *Stream) IsAmbient() bool         { return s.kind == KindAmbient }
func (s *Stream) IsAi() bool              { return s.kind == KindAi }
func (s *Stream) Muted() bool             { return s.muted }
// SetMuted toggles mute. Muting while a speech region is open discards
// that region rather than emitting it later (§8 scenario 4, option (b)):
// no samples captured after the mute timestamp can appear in any
// emitted utterance, and a consistent single behavior is required.
func (s *Stream) SetMuted(muted bool) {
	if muted && !s.muted && s.detector != nil {
		s.detector.Reset()
		s.isSpeaking = false
	}
	s.muted = muted
}
func (s *Stream) IsSpeaking() bool        { return s.isSpeaking }
func (s *Stream) AvailableSamples() int   { return s.available }
func (s *Stream) RingCapacity() int       { return len(s.ring) }

// PushAudio consumes inbound samples, returning a completed Utterance
// only when this push closed an open human speech region. Ai/Ambient
// pushes never return an utterance (§4.1).
func (s *Stream) PushAudio(samples []int16) (*vad.Utterance, error) {
	switch s.kind {
	case KindHuman:
		return s.pushHuman(samples)
	default:
		s.pushRing(samples)
		return nil, nil
	}
}

func (s *Stream) pushHuman(samples []int16) (*vad.Utterance, error) {
	n := len(samples)
	if n > len(s.liveFrame) {
		// Truncate to the most recent frame; old audio discarded (§4.1
		// edge case — senders are expected to push at cadence).
		samples = samples[n-len(s.liveFrame):]
		n = len(s.liveFrame)
	}
	copy(s.liveFrame, samples)
	s.frameLen = n

	if s.muted {
		// Muted humans skip the VAD entirely (§4.1).
		return nil, nil
	}

	u, err := s.detector.Process(samples)
	s.isSpeaking = s.detector.Open()
	return u, err
}

// pushRing appends into the ring buffer; if free space is insufficient,
// it writes what fits and logs the drop, never blocking the writer (§3).
func (s *Stream) pushRing(samples []int16) {
	free := len(s.ring) - s.available
	n := len(samples)
	if n > free {
		if s.logger != nil {
			s.logger.Warnw("stream: ring buffer overflow, dropping tail",
				"handle", s.handle.String(),
				"dropped_samples", n-free,
			)
		}
		n = free
	}
	for i := 0; i < n; i++ {
		s.ring[s.writePos] = samples[i]
		s.writePos = (s.writePos + 1) % len(s.ring)
	}
	s.available += n
}

// PullFrame returns exactly one tick's worth of audio, the mixer's only
// per-tick read of this stream (§4.2 step 2: pulling more than once per
// tick is forbidden, enforced by the mixer calling this exactly once).
func (s *Stream) PullFrame() []int16 {
	if s.muted {
		return nil
	}
	switch s.kind {
	case KindHuman:
		return s.pullHuman()
	default:
		return s.pullRing()
	}
}

func (s *Stream) pullHuman() []int16 {
	if s.frameLen == 0 {
		return nil
	}
	out := make([]int16, s.frameLen)
	copy(out, s.liveFrame[:s.frameLen])
	// A human live frame is a per-tick push, not a persistent buffer: if
	// nothing is pushed before the next tick, the next pull sees empty
	// again rather than repeating stale audio.
	s.frameLen = 0
	return out
}

func (s *Stream) pullRing() []int16 {
	frameSize := audio.FrameSize
	if s.available >= frameSize {
		out := make([]int16, frameSize)
		for i := 0; i < frameSize; i++ {
			out[i] = s.ring[s.readPos]
			s.readPos = (s.readPos + 1) % len(s.ring)
		}
		s.available -= frameSize
		return out
	}
	if s.available > 0 {
		out := make([]int16, frameSize)
		for i := 0; i < s.available; i++ {
			out[i] = s.ring[s.readPos]
			s.readPos = (s.readPos + 1) % len(s.ring)
		}
		s.available = 0
		return out
	}
	return nil
}

// Close releases the stream's VAD model resources, a no-op for Ai/Ambient.
func (s *Stream) Close() error {
	if s.detector != nil {
		return s.detector.Close()
	}
	return nil
}
