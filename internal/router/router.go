// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package router implements CapabilityRegistry and AudioRouter (§4.5):
// capability-aware bridging between participants whose models have
// asymmetric audio capabilities. The router never stores raw audio; it
// only decides whether STT or TTS must bridge a given participant.
package router

import (
	"fmt"
	"sync"

	"github.com/confmesh/core/internal/logging"
)

// Capabilities records one model's audio/text I/O surface (§3).
type Capabilities struct {
	AudioInput  bool
	AudioOutput bool
	TextInput   bool
	TextOutput  bool
}

// NeedsSTT reports whether inbound peer audio must be transcribed to text
// for this model to consume it.
func (c Capabilities) NeedsSTT() bool {
	return !c.AudioInput && c.TextInput
}

// NeedsTTS reports whether this model's text output must be synthesized
// to audio before other listeners can hear it.
func (c Capabilities) NeedsTTS() bool {
	return !c.AudioOutput && c.TextOutput
}

// CapabilityRegistry is the static-ish model_id → Capabilities map (§3).
type CapabilityRegistry struct {
	mu     sync.RWMutex
	models map[string]Capabilities
}

// NewCapabilityRegistry builds a registry seeded with defaults (may be
// nil/empty; models are commonly registered at startup and rarely
// change afterward).
func NewCapabilityRegistry(defaults map[string]Capabilities) *CapabilityRegistry {
	r := &CapabilityRegistry{models: make(map[string]Capabilities, len(defaults))}
	for id, c := range defaults {
		r.models[id] = c
	}
	return r
}

// Register adds or overwrites a model's capabilities.
func (r *CapabilityRegistry) Register(modelID string, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[modelID] = caps
}

// Lookup returns the capabilities registered for modelID.
func (r *CapabilityRegistry) Lookup(modelID string) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.models[modelID]
	return c, ok
}

// RoutedParticipant is one identity's routing record, keyed by user_id
// rather than Handle because routing decisions are per-identity, not
// per-connection (§3).
type RoutedParticipant struct {
	UserID       string
	DisplayName  string
	Capabilities Capabilities
}

// Injector delivers synthesized audio samples to every audio-capable
// listener; the router decides *whether* to call it, never how audio
// reaches the mixer. CallManager supplies the concrete implementation
// (§4.4's injection path).
type Injector interface {
	InjectAudio(callID, toUserID string, samples []int16, sampleRate int) error
}

// AudioRouter tracks per-identity routing state for one call and bridges
// audio/text between heterogeneous-capability participants (§4.5).
type AudioRouter struct {
	mu           sync.RWMutex
	registry     *CapabilityRegistry
	participants map[string]RoutedParticipant
	logger       logging.Logger
}

// New builds an AudioRouter backed by registry.
func New(registry *CapabilityRegistry, logger logging.Logger) *AudioRouter {
	return &AudioRouter{
		registry:     registry,
		participants: make(map[string]RoutedParticipant),
		logger:       logger,
	}
}

// AddParticipant looks up modelID's capabilities and records routing
// needs for userID. An unknown modelID is treated as fully audio-capable
// (no bridging needed) rather than an error, since routing is advisory:
// the mixer/VAD/STT paths keep working either way.
func (r *AudioRouter) AddParticipant(userID, displayName, modelID string) {
	caps, ok := r.registry.Lookup(modelID)
	if !ok {
		caps = Capabilities{AudioInput: true, AudioOutput: true}
		r.logger.Warnw("router: unknown model id, defaulting to fully audio-capable",
			"user_id", userID, "model_id", modelID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[userID] = RoutedParticipant{UserID: userID, DisplayName: displayName, Capabilities: caps}
}

// RemoveParticipant drops userID from routing tables (§4.5).
func (r *AudioRouter) RemoveParticipant(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, userID)
}

// Get returns userID's routing record.
func (r *AudioRouter) Get(userID string) (RoutedParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[userID]
	return p, ok
}

// NeedsSTT reports whether userID's model requires inbound peer audio to
// be transcribed.
func (r *AudioRouter) NeedsSTT(userID string) bool {
	p, ok := r.Get(userID)
	return ok && p.Capabilities.NeedsSTT()
}

// NeedsTTS reports whether userID's model requires its text output to be
// synthesized before peers hear it.
func (r *AudioRouter) NeedsTTS(userID string) bool {
	p, ok := r.Get(userID)
	return ok && p.Capabilities.NeedsTTS()
}

// AudioCapableListeners returns every registered user_id whose model can
// ingest audio, for routing a synthesized TTS result out to the mix.
func (r *AudioRouter) AudioCapableListeners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.participants))
	for userID, p := range r.participants {
		if p.Capabilities.AudioInput {
			out = append(out, userID)
		}
	}
	return out
}

// RouteTTSAudio injects already-synthesized audio into the mixer for
// every audio-capable listener in the call, via inj (§4.5: "a standard
// inject: text → synthesis → push to the participant's Handle —
// identical to the injection from §4.4").
func (r *AudioRouter) RouteTTSAudio(inj Injector, callID, fromUserID, displayName string, samples []int16, sampleRate int) error {
	var firstErr error
	for _, userID := range r.AudioCapableListeners() {
		if userID == fromUserID {
			continue
		}
		if err := inj.InjectAudio(callID, userID, samples, sampleRate); err != nil {
			r.logger.Warnw("router: tts injection failed",
				"call_id", callID, "from", fromUserID, "to", userID, "error", err.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("router: inject to %s: %w", userID, err)
			}
		}
	}
	return firstErr
}
