// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package mixer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/stream"
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

// TestMixMinus_TwoHumans_ExactByteEquality is §8 scenario 1.
func TestMixMinus_TwoHumans_ExactByteEquality(t *testing.T) {
	m := New(logging.NewNop())

	alice := stream.NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	bob := stream.NewHuman(handle.New(), "bob", "Bob", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	m.AddStream(alice)
	m.AddStream(bob)

	aliceFrame := sine(1000, 16000, audio.FrameSize)
	bobFrame := sine(2000, 16000, audio.FrameSize)

	_, ok, err := m.PushAudio(alice.Handle(), aliceFrame)
	require.True(t, ok)
	require.NoError(t, err)
	_, ok, err = m.PushAudio(bob.Handle(), bobFrame)
	require.True(t, ok)
	require.NoError(t, err)

	result := m.Tick()
	require.Equal(t, bobFrame, result.ListenerMixes[alice.Handle()])
	require.Equal(t, aliceFrame, result.ListenerMixes[bob.Handle()])
}

func TestTick_AmbientAlwaysSummedNeverAListener(t *testing.T) {
	m := New(logging.NewNop())

	alice := stream.NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	ambient := stream.NewAmbient(handle.New(), "radio", logging.NewNop())
	m.AddStream(alice)
	m.AddStream(ambient)

	aliceFrame := sine(1000, 8000, audio.FrameSize)
	ambientSamples := make([]int16, audio.FrameSize)
	for i := range ambientSamples {
		ambientSamples[i] = 100
	}

	_, _, err := m.PushAudio(alice.Handle(), aliceFrame)
	require.NoError(t, err)
	_, _, err = m.PushAudio(ambient.Handle(), ambientSamples)
	require.NoError(t, err)

	result := m.Tick()

	_, ambientIsListener := result.ListenerMixes[ambient.Handle()]
	require.False(t, ambientIsListener, "ambient handles never appear as listeners")

	aliceMix := result.ListenerMixes[alice.Handle()]
	for i, v := range aliceMix {
		require.Equal(t, int16(100), v, "ambient source must be summed into every listener's mix at sample %d", i)
	}
}

func TestTick_MutedSenderContributesNothing(t *testing.T) {
	m := New(logging.NewNop())

	alice := stream.NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	bob := stream.NewHuman(handle.New(), "bob", "Bob", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	m.AddStream(alice)
	m.AddStream(bob)
	bob.SetMuted(true)

	bobFrame := sine(2000, 16000, audio.FrameSize)
	_, _, err := m.PushAudio(bob.Handle(), bobFrame)
	require.NoError(t, err)

	result := m.Tick()
	aliceMix := result.ListenerMixes[alice.Handle()]
	for _, v := range aliceMix {
		require.Equal(t, int16(0), v)
	}
}

func TestTick_SenderFrames_OneFramePerNonEmptySender(t *testing.T) {
	m := New(logging.NewNop())

	alice := stream.NewHuman(handle.New(), "alice", "Alice", vad.DefaultConfig(), vad.NewStubStage2(1e9), logging.NewNop())
	m.AddStream(alice)

	// Nothing pushed this tick: no sender frame for alice.
	result := m.Tick()
	require.Empty(t, result.SenderFrames)

	_, _, err := m.PushAudio(alice.Handle(), sine(1000, 8000, audio.FrameSize))
	require.NoError(t, err)
	result = m.Tick()
	require.Len(t, result.SenderFrames, 1)
	require.Equal(t, alice.Handle(), result.SenderFrames[0].Handle)
}

func TestAi_RingDrainsToExactlyZeroAfterFiveHundredTicks(t *testing.T) {
	m := New(logging.NewNop())
	ai := stream.NewAi(handle.New(), "assistant", "Assistant", logging.NewNop())
	m.AddStream(ai)

	samples := make([]int16, 160000)
	_, _, err := m.PushAudio(ai.Handle(), samples)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		m.Tick()
	}
	require.Equal(t, 0, ai.AvailableSamples())
}
