// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package manager implements CallManager (§4.7): the process-wide
// registry of every active Call, every participant's Handle, and the
// driver goroutine for each — the single entry point cmd/confd's wire
// server calls into for join/leave/push/speak/stats.
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/confmesh/core/internal/call"
	"github.com/confmesh/core/internal/errs"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/router"
	"github.com/confmesh/core/internal/stream"
	"github.com/confmesh/core/internal/stt"
	"github.com/confmesh/core/internal/transcription"
	"github.com/confmesh/core/internal/tts"
	"github.com/confmesh/core/internal/vad"
)

// VideoSource is an operator-attached video pipeline (e.g. a recording
// playback or a synthetic avatar feed) that pushes frames into a call
// until its shutdown signal fires (§4.7 "AddVideoSource").
type VideoSource interface {
	// Run pushes frames via push until ctx is cancelled.
	Run(ctx context.Context, push func(data []byte) error)
}

// participantRecord is everything the manager needs to tear a
// participant down: which call they're in and which stream to close.
type participantRecord struct {
	callID string
	handle handle.Handle
}

// CallManager owns every active Call, keyed by call ID, plus the
// cross-cutting services (capability registry, STT/TTS adapters,
// transcription gate) shared across all of them.
type CallManager struct {
	mu           sync.RWMutex
	calls        map[string]*call.Call
	routers      map[string]*router.AudioRouter
	participants map[string]participantRecord // userID -> record
	videoCancels map[string]context.CancelFunc // callID:userID -> cancel

	registry    *router.CapabilityRegistry
	transcriber stt.Transcriber
	synth       tts.Synthesizer
	gate        *transcription.Gate
	vadCfg      vad.Config
	newStage2   func(vad.Config) (vad.Stage2, error)
	logger      logging.Logger

	callCfg call.Config
}

// Options bundles the adapters CallManager wires into every Call and
// AudioRouter it creates.
type Options struct {
	Registry         *router.CapabilityRegistry
	Transcriber      stt.Transcriber
	Synthesizer      tts.Synthesizer
	MaxConcurrentSTT int64
	VADConfig        vad.Config
	NewStage2        func(vad.Config) (vad.Stage2, error)
	CallConfig       call.Config
	Logger           logging.Logger
}

// New builds an empty CallManager.
func New(opts Options) *CallManager {
	if opts.Registry == nil {
		opts.Registry = router.NewCapabilityRegistry(nil)
	}
	return &CallManager{
		calls:        make(map[string]*call.Call),
		routers:      make(map[string]*router.AudioRouter),
		participants: make(map[string]participantRecord),
		videoCancels: make(map[string]context.CancelFunc),
		registry:     opts.Registry,
		transcriber:  opts.Transcriber,
		synth:        opts.Synthesizer,
		gate:         transcription.New(opts.MaxConcurrentSTT, opts.Transcriber, opts.Logger),
		vadCfg:       opts.VADConfig,
		newStage2:    opts.NewStage2,
		callCfg:      opts.CallConfig,
		logger:       opts.Logger,
	}
}

// GetOrCreateCall returns the Call for callID, starting its driver loop
// the first time it's created (§4.7).
func (m *CallManager) GetOrCreateCall(ctx context.Context, callID string) *call.Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.calls[callID]; ok {
		return c
	}

	c := call.New(callID, m.callCfg, m.logger)
	m.calls[callID] = c
	m.routers[callID] = router.New(m.registry, m.logger)
	go c.Start(ctx)
	return c
}

// JoinCallWithModel registers userID as a participant of callID under
// modelID's capabilities, returning the minted Handle. isAi selects
// between a live-frame Human ParticipantStream and a ring-buffer Ai
// ParticipantStream (§4.7 join_call(call_id, user_id, display_name,
// is_ai)): a model-backed participant has no microphone to debounce, so
// it gets stream.NewAi instead of stream.NewHuman's VAD-backed stream.
func (m *CallManager) JoinCallWithModel(ctx context.Context, callID, userID, displayName, modelID string, isAi bool) handle.Handle {
	c := m.GetOrCreateCall(ctx, callID)

	h := handle.New()
	var s *stream.Stream
	if isAi {
		s = stream.NewAi(h, userID, displayName, m.logger)
	} else {
		s = stream.NewHuman(h, userID, displayName, m.vadCfg, m.newStage2, m.logger)
	}
	c.AddParticipant(s)

	m.mu.Lock()
	m.routers[callID].AddParticipant(userID, displayName, modelID)
	m.participants[userID] = participantRecord{callID: callID, handle: h}
	m.mu.Unlock()

	return h
}

// JoinCall is JoinCallWithModel with no declared model, joining as a
// human participant — treated as fully audio-capable (§4.5 default).
func (m *CallManager) JoinCall(ctx context.Context, callID, userID, displayName string) handle.Handle {
	return m.JoinCallWithModel(ctx, callID, userID, displayName, "", false)
}

// LeaveCall removes userID from its call, closing its stream's VAD
// resources and cleaning up any attached video source.
func (m *CallManager) LeaveCall(userID string) error {
	m.mu.Lock()
	rec, ok := m.participants[userID]
	if !ok {
		m.mu.Unlock()
		return errs.ErrParticipantNotFound
	}
	delete(m.participants, userID)
	c, callOk := m.calls[rec.callID]
	r := m.routers[rec.callID]
	if cancel, hasVideo := m.videoCancels[rec.callID+":"+userID]; hasVideo {
		cancel()
		delete(m.videoCancels, rec.callID+":"+userID)
	}
	m.mu.Unlock()

	if !callOk {
		return errs.ErrCallNotFound
	}
	if r != nil {
		r.RemoveParticipant(userID)
	}
	s, removed := c.RemoveParticipant(rec.handle)
	if !removed {
		return errs.ErrHandleNotRegistered
	}
	return s.Close()
}

// resolve looks up a participant's call and stream handle.
func (m *CallManager) resolve(userID string) (*call.Call, handle.Handle, error) {
	m.mu.RLock()
	rec, ok := m.participants[userID]
	defer m.mu.RUnlock()
	if !ok {
		return nil, handle.Zero, errs.ErrParticipantNotFound
	}
	c, ok := m.calls[rec.callID]
	if !ok {
		return nil, handle.Zero, errs.ErrCallNotFound
	}
	return c, rec.handle, nil
}

// PushAudio routes inbound audio to userID's stream and, if a speech
// region just closed, submits the utterance to the shared
// TranscriptionGate outside any Call lock (§4.7's minimum-scope lock
// sequence: push under the lock, gate submission after release).
func (m *CallManager) PushAudio(ctx context.Context, callID, userID, displayName string, samples []int16) error {
	c, h, err := m.resolve(userID)
	if err != nil {
		return err
	}
	u, ok, err := c.PushAudio(h, samples)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrHandleNotRegistered
	}
	if u == nil {
		return nil
	}

	err = m.gate.Submit(ctx, userID, displayName, u, func(ev transcription.Event) {
		c.PublishTranscription(call.Transcription{
			UserID:      ev.UserID,
			DisplayName: ev.DisplayName,
			Text:        ev.Text,
			Confidence:  ev.Confidence,
			Language:    ev.Language,
		})
	})
	if err != nil {
		m.logger.Warnw("manager: transcription gate rejected utterance",
			"call_id", callID, "user_id", userID, "error", err.Error())
	}
	return nil
}

// SetMuted toggles userID's mute state (§6 "mute" control message).
func (m *CallManager) SetMuted(userID string, muted bool) error {
	c, h, err := m.resolve(userID)
	if err != nil {
		return err
	}
	if !c.SetMuted(h, muted) {
		return errs.ErrHandleNotRegistered
	}
	return nil
}

// SetVideoConfig records userID's negotiated video parameters (§6
// "video_config" control message), consulted when tagging outbound
// VideoFrames so peers know how to decode them.
func (m *CallManager) SetVideoConfig(userID string, cfg call.VideoConfig) error {
	c, h, err := m.resolve(userID)
	if err != nil {
		return err
	}
	if !c.SetVideoConfig(h, cfg) {
		return errs.ErrHandleNotRegistered
	}
	return nil
}

// PushVideo routes a video frame from userID into its call.
func (m *CallManager) PushVideo(userID string, data []byte) error {
	c, h, err := m.resolve(userID)
	if err != nil {
		return err
	}
	if !c.PushVideo(h, data) {
		return errs.ErrHandleNotRegistered
	}
	return nil
}

// InjectAudio pushes already-synthesized audio into toUserID's stream
// (§4.4/§4.5 injection path), addressed by call ID + user ID since the
// injector may not hold toUserID's Handle directly.
func (m *CallManager) InjectAudio(callID, toUserID string, samples []int16, sampleRate int) error {
	m.mu.RLock()
	c, callOk := m.calls[callID]
	rec, partOk := m.participants[toUserID]
	m.mu.RUnlock()
	if !callOk {
		return errs.ErrCallNotFound
	}
	if !partOk || rec.callID != callID {
		return errs.ErrParticipantNotFound
	}
	return c.InjectAudio(rec.handle, samples)
}

// InjectAudioByHandle is InjectAudio for callers that already hold a
// Handle (e.g. the wire layer dispatching a legacy binary frame).
func (m *CallManager) InjectAudioByHandle(callID string, h handle.Handle, samples []int16) error {
	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return errs.ErrCallNotFound
	}
	return c.InjectAudio(h, samples)
}

// SpeakInCall synthesizes text via the shared Synthesizer and routes the
// resulting audio to every audio-capable listener via the call's
// AudioRouter (§4.5, §4.7).
func (m *CallManager) SpeakInCall(ctx context.Context, callID, fromUserID, displayName, voice, text string) error {
	if m.synth == nil {
		return fmt.Errorf("manager: no synthesizer configured")
	}
	m.mu.RLock()
	r, ok := m.routers[callID]
	m.mu.RUnlock()
	if !ok {
		return errs.ErrCallNotFound
	}

	result, err := m.synth.Synthesize(ctx, tts.Request{Text: text, Voice: voice})
	if err != nil {
		return fmt.Errorf("manager: synthesize: %w", err)
	}
	return r.RouteTTSAudio(injectorFunc(m.InjectAudio), callID, fromUserID, displayName, result.Samples, result.SampleRate)
}

// injectorFunc adapts a plain function to router.Injector.
type injectorFunc func(callID, toUserID string, samples []int16, sampleRate int) error

func (f injectorFunc) InjectAudio(callID, toUserID string, samples []int16, sampleRate int) error {
	return f(callID, toUserID, samples, sampleRate)
}

// AddAmbientSource registers a named ambient audio source in callID,
// returning its Handle so the caller can later push samples via
// InjectAudioByHandle (§3 "Ambient").
func (m *CallManager) AddAmbientSource(ctx context.Context, callID, sourceName string) handle.Handle {
	c := m.GetOrCreateCall(ctx, callID)
	h := handle.New()
	c.AddParticipant(stream.NewAmbient(h, sourceName, m.logger))
	return h
}

// RemoveAmbientSource unregisters an ambient source's Handle from callID.
func (m *CallManager) RemoveAmbientSource(callID string, h handle.Handle) error {
	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return errs.ErrCallNotFound
	}
	_, removed := c.RemoveParticipant(h)
	if !removed {
		return errs.ErrHandleNotRegistered
	}
	return nil
}

// AddVideoSource attaches src to callID under userID's identity, running
// it until RemoveVideoSource (or LeaveCall, if userID is a real
// participant) cancels it.
func (m *CallManager) AddVideoSource(ctx context.Context, callID, userID string, src VideoSource) {
	videoCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.videoCancels[callID+":"+userID] = cancel
	m.mu.Unlock()

	go src.Run(videoCtx, func(data []byte) error {
		return m.PushVideo(userID, data)
	})
}

// RemoveVideoSource cancels a previously attached video source.
func (m *CallManager) RemoveVideoSource(callID, userID string) {
	key := callID + ":" + userID
	m.mu.Lock()
	cancel, ok := m.videoCancels[key]
	if ok {
		delete(m.videoCancels, key)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// GetStats returns callID's current activity snapshot.
func (m *CallManager) GetStats(callID string) (call.Stats, error) {
	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return call.Stats{}, errs.ErrCallNotFound
	}
	return c.Stats(), nil
}

// GetCall returns the Call for callID, for callers (the wire layer) that
// need direct subscribe access.
func (m *CallManager) GetCall(callID string) (*call.Call, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callID]
	return c, ok
}

// EndCall stops callID's driver loop and removes it from the registry.
// Participants are not automatically left; callers are expected to
// LeaveCall each one first (or accept their next push/pull failing with
// ErrCallNotFound).
func (m *CallManager) EndCall(callID string) error {
	m.mu.Lock()
	c, ok := m.calls[callID]
	if ok {
		delete(m.calls, callID)
		delete(m.routers, callID)
	}
	m.mu.Unlock()
	if !ok {
		return errs.ErrCallNotFound
	}
	c.Stop()
	return nil
}
