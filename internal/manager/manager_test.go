// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/call"
	"github.com/confmesh/core/internal/errs"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/router"
	"github.com/confmesh/core/internal/stt"
	"github.com/confmesh/core/internal/tts"
	"github.com/confmesh/core/internal/vad"
)

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	return stt.Result{Text: s.text, Confidence: 0.9, Language: "en"}, nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	return tts.Result{Samples: make([]int16, 320), SampleRate: 16000}, nil
}

func testManager(t *testing.T) *CallManager {
	t.Helper()
	return New(Options{
		Registry:         router.NewCapabilityRegistry(nil),
		Transcriber:      stubTranscriber{text: "hello"},
		Synthesizer:      stubSynth{},
		MaxConcurrentSTT: 2,
		VADConfig:        vad.DefaultConfig(),
		NewStage2:        vad.NewStubStage2(500),
		CallConfig:       call.DefaultConfig(),
		Logger:           logging.NewNop(),
	})
}

func TestJoinCall_CreatesCallAndRegistersParticipant(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := m.JoinCall(ctx, "call-1", "alice", "Alice")
	require.False(t, h.IsZero())

	c, ok := m.GetCall("call-1")
	require.True(t, ok)
	require.Equal(t, 1, c.ParticipantCount())
}

func TestLeaveCall_RemovesParticipantAndIsIdempotentOnUnknown(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.JoinCall(ctx, "call-1", "alice", "Alice")
	require.NoError(t, m.LeaveCall("alice"))

	c, _ := m.GetCall("call-1")
	require.Equal(t, 0, c.ParticipantCount())

	err := m.LeaveCall("alice")
	require.True(t, errors.Is(err, errs.ErrParticipantNotFound))
}

func TestPushAudio_UnknownParticipantReturnsError(t *testing.T) {
	m := testManager(t)
	err := m.PushAudio(context.Background(), "call-1", "ghost", "Ghost", make([]int16, 320))
	require.True(t, errors.Is(err, errs.ErrParticipantNotFound))
}

func TestPushAudio_LoudFrameEventuallyEmitsTranscription(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.JoinCall(ctx, "call-1", "alice", "Alice")
	c, _ := m.GetCall("call-1")
	_, transcriptionCh := c.SubscribeTranscription()

	loud := make([]int16, 320)
	for i := range loud {
		loud[i] = 20000
	}
	quiet := make([]int16, 320)

	for i := 0; i < 15; i++ {
		require.NoError(t, m.PushAudio(ctx, "call-1", "alice", "Alice", loud))
	}
	// The VAD measures hang-over in wall-clock time between pushes, so the
	// quiet frames are pushed at the 20ms frame cadence.
	for i := 0; i < 25; i++ {
		require.NoError(t, m.PushAudio(ctx, "call-1", "alice", "Alice", quiet))
		time.Sleep(audio.FrameDurationMs * time.Millisecond)
	}

	select {
	case ev := <-transcriptionCh:
		require.Equal(t, "hello", ev.Text)
		require.Equal(t, "alice", ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a transcription event")
	}
}

func TestAddAmbientSource_IsNotCountedAsRealParticipant(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := m.AddAmbientSource(ctx, "call-1", "hold-music")
	require.False(t, h.IsZero())

	c, ok := m.GetCall("call-1")
	require.True(t, ok)
	require.Equal(t, 1, c.ParticipantCount())

	require.NoError(t, m.RemoveAmbientSource("call-1", h))
	require.Equal(t, 0, c.ParticipantCount())
}

func TestJoinCallWithModel_AiParticipant_PushTickDrain(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := m.JoinCallWithModel(ctx, "call-1", "assistant", "Assistant", "gpt-voice", true)
	require.False(t, h.IsZero())

	c, ok := m.GetCall("call-1")
	require.True(t, ok)
	require.Equal(t, 1, c.ParticipantCount())

	_, audioCh := c.SubscribeAudio()

	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = 5000
	}
	require.NoError(t, m.PushAudio(ctx, "call-1", "assistant", "Assistant", samples))

	select {
	case frame := <-audioCh:
		require.Equal(t, "assistant", frame.SenderUserID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the ring-buffered Ai audio to drain into a sender frame")
	}
}

func TestSetMuted_UnknownParticipantReturnsError(t *testing.T) {
	m := testManager(t)
	err := m.SetMuted("ghost", true)
	require.True(t, errors.Is(err, errs.ErrParticipantNotFound))
}

func TestSetMuted_KnownParticipantSucceeds(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.JoinCall(ctx, "call-1", "alice", "Alice")
	require.NoError(t, m.SetMuted("alice", true))
}

func TestSetVideoConfig_AppliesToSubsequentPushedFrames(t *testing.T) {
	m := testManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.JoinCall(ctx, "call-1", "alice", "Alice")
	c, _ := m.GetCall("call-1")
	_, videoCh := c.SubscribeVideo()

	require.NoError(t, m.SetVideoConfig("alice", call.VideoConfig{Width: 640, Height: 480, FPS: 30, Format: "vp8"}))
	require.NoError(t, m.PushVideo("alice", []byte{1, 2, 3}))

	select {
	case frame := <-videoCh:
		require.Equal(t, "alice", frame.SenderUserID)
		require.Equal(t, "vp8", frame.Format)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a video frame tagged with the configured format")
	}
}

func TestSetVideoConfig_UnknownParticipantReturnsError(t *testing.T) {
	m := testManager(t)
	err := m.SetVideoConfig("ghost", call.VideoConfig{Format: "vp8"})
	require.True(t, errors.Is(err, errs.ErrParticipantNotFound))
}

func TestGetStats_UnknownCallReturnsError(t *testing.T) {
	m := testManager(t)
	_, err := m.GetStats("nope")
	require.True(t, errors.Is(err, errs.ErrCallNotFound))
}
