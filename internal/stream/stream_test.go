// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package stream

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/vad"
)

func sine(freqHz float64, amplitude int16, n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(audio.SampleRate)
		out[i] = int16(float64(amplitude) * math.Sin(2*math.Pi*freqHz*t))
	}
	return out
}

func TestHuman_PullReturnsEmptyBeforeAnyPush(t *testing.T) {
	s := NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	require.Empty(t, s.PullFrame())
}

func TestHuman_PushThenPullRoundTrips(t *testing.T) {
	s := NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	frame := sine(1000, 16000, audio.FrameSize)

	_, err := s.PushAudio(frame)
	require.NoError(t, err)

	out := s.PullFrame()
	require.Equal(t, frame, out)

	// Second pull without a push in between returns empty, not the
	// stale frame repeated (§4.1).
	require.Empty(t, s.PullFrame())
}

func TestHuman_MutedSkipsVADAndPull(t *testing.T) {
	s := NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1), logging.NewNop())
	s.SetMuted(true)

	frame := sine(1000, 16000, audio.FrameSize)
	_, err := s.PushAudio(frame)
	require.NoError(t, err)
	require.False(t, s.IsSpeaking())
	require.Empty(t, s.PullFrame(), "muted stream must contribute nothing")
}

func TestAi_RingDrainsExactlyAfterFiveHundredTicks(t *testing.T) {
	s := NewAi(handle.New(), "assistant", "Assistant", logging.NewNop())

	samples := make([]int16, 160000) // 10s at 16kHz
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	_, err := s.PushAudio(samples)
	require.NoError(t, err)
	require.Equal(t, 160000, s.AvailableSamples())

	for i := 0; i < 500; i++ {
		frame := s.PullFrame()
		require.Len(t, frame, audio.FrameSize)
	}
	require.Equal(t, 0, s.AvailableSamples())
}

func TestAi_RingOverflowDropsOnlyTail(t *testing.T) {
	s := NewAi(handle.New(), "assistant", "Assistant", logging.NewNop())

	capacity := s.RingCapacity()
	first := make([]int16, capacity)
	for i := range first {
		first[i] = 1
	}
	_, err := s.PushAudio(first)
	require.NoError(t, err)
	require.Equal(t, capacity, s.AvailableSamples())

	overflow := make([]int16, 1000)
	for i := range overflow {
		overflow[i] = 2
	}
	_, err = s.PushAudio(overflow)
	require.NoError(t, err)
	require.Equal(t, capacity, s.AvailableSamples(), "ring stays full, overflow tail dropped")

	frame := s.PullFrame()
	for _, v := range frame {
		require.Equal(t, int16(1), v, "previously buffered audio still plays in order")
	}
}

func TestAmbient_NeverMutedOutByDefaultAndFlagged(t *testing.T) {
	s := NewAmbient(handle.New(), "hold-music", logging.NewNop())
	require.False(t, s.Muted())
	require.True(t, s.IsAmbient())
	require.False(t, s.IsAi())
}
