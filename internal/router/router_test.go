// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/logging"
)

func TestCapabilities_DerivedPredicates(t *testing.T) {
	textOnly := Capabilities{AudioInput: false, TextInput: true, AudioOutput: false, TextOutput: true}
	require.True(t, textOnly.NeedsSTT())
	require.True(t, textOnly.NeedsTTS())

	fullAudio := Capabilities{AudioInput: true, AudioOutput: true}
	require.False(t, fullAudio.NeedsSTT())
	require.False(t, fullAudio.NeedsTTS())
}

// TestCapabilityBridge is §8 scenario 5.
func TestCapabilityBridge(t *testing.T) {
	registry := NewCapabilityRegistry(map[string]Capabilities{
		"text-model":  {AudioInput: false, TextInput: true, AudioOutput: false, TextOutput: true},
		"audio-model": {AudioInput: true, AudioOutput: true},
	})
	r := New(registry, logging.NewNop())

	r.AddParticipant("p1", "P1", "text-model")
	r.AddParticipant("p2", "P2", "audio-model")

	require.True(t, r.NeedsSTT("p1"), "p1 cannot ingest audio, peer speech must be bridged as text")
	require.False(t, r.NeedsSTT("p2"))
	require.True(t, r.NeedsTTS("p1"), "p1 cannot produce audio, its text must be synthesized")
	require.False(t, r.NeedsTTS("p2"))
}

func TestAudioRouter_RemoveParticipantDropsRoutingState(t *testing.T) {
	registry := NewCapabilityRegistry(nil)
	r := New(registry, logging.NewNop())
	r.AddParticipant("p1", "P1", "unknown-model")
	_, ok := r.Get("p1")
	require.True(t, ok)

	r.RemoveParticipant("p1")
	_, ok = r.Get("p1")
	require.False(t, ok)
}

type fakeInjector struct {
	injected map[string][]int16
}

func (f *fakeInjector) InjectAudio(callID, toUserID string, samples []int16, sampleRate int) error {
	if f.injected == nil {
		f.injected = map[string][]int16{}
	}
	f.injected[toUserID] = samples
	return nil
}

func TestRouteTTSAudio_SkipsSenderReachesEveryOtherAudioCapableListener(t *testing.T) {
	registry := NewCapabilityRegistry(map[string]Capabilities{
		"audio-model": {AudioInput: true, AudioOutput: true},
	})
	r := New(registry, logging.NewNop())
	r.AddParticipant("p1", "P1", "audio-model")
	r.AddParticipant("p2", "P2", "audio-model")
	r.AddParticipant("p3", "P3", "audio-model")

	inj := &fakeInjector{}
	samples := []int16{1, 2, 3}
	err := r.RouteTTSAudio(inj, "call-1", "p1", "P1", samples, 16000)
	require.NoError(t, err)

	require.NotContains(t, inj.injected, "p1")
	require.Equal(t, samples, inj.injected["p2"])
	require.Equal(t, samples, inj.injected["p3"])
}
