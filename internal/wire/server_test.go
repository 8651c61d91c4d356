// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package wire

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/call"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/manager"
	"github.com/confmesh/core/internal/router"
	"github.com/confmesh/core/internal/stt"
	"github.com/confmesh/core/internal/tts"
	"github.com/confmesh/core/internal/vad"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	return stt.Result{}, nil
}

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	return tts.Result{Samples: make([]int16, 320), SampleRate: 16000}, nil
}

func testServer(t *testing.T) (*Server, *manager.CallManager) {
	t.Helper()
	mgr := manager.New(manager.Options{
		Registry:         router.NewCapabilityRegistry(nil),
		Transcriber:      stubTranscriber{},
		Synthesizer:      stubSynth{},
		MaxConcurrentSTT: 2,
		VADConfig:        vad.DefaultConfig(),
		NewStage2:        vad.NewStubStage2(500),
		CallConfig:       call.DefaultConfig(),
		Logger:           logging.NewNop(),
	})
	return New(mgr, logging.NewNop()), mgr
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestServeHTTP_QueryParamJoin covers the legacy convention: call_id and
// user_id present on the upgrade request join the participant before the
// control loop starts, with no in-band join message required.
func TestServeHTTP_QueryParamJoin(t *testing.T) {
	srv, mgr := testServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "?call_id=call-1&user_id=alice&display_name=Alice"
	dial(t, wsURL)

	require.Eventually(t, func() bool {
		c, ok := mgr.GetCall("call-1")
		return ok && c.ParticipantCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestServeHTTP_InBandJoin covers the wire-native join path (§6
// ControlJoin/JoinData), required when the upgrade request carries no
// call_id/user_id query parameters, here declaring is_ai in JoinData.
func TestServeHTTP_InBandJoin(t *testing.T) {
	srv, mgr := testServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn := dial(t, wsURL)

	msg, err := Encode(ControlJoin, JoinData{CallID: "call-1", UserID: "assistant", DisplayName: "Assistant", IsAI: true})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	require.Eventually(t, func() bool {
		c, ok := mgr.GetCall("call-1")
		return ok && c.ParticipantCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestServeHTTP_InBandJoin_MissingFieldsRejected confirms an in-band join
// with no call_id/user_id produces an error message rather than silently
// joining.
func TestServeHTTP_InBandJoin_MissingFieldsRejected(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn := dial(t, wsURL)

	msg, err := Encode(ControlJoin, JoinData{})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, ControlError, env.Type)
}

// TestServeHTTP_VideoConfigDispatch covers the ControlVideoConfig path
// (§6): a valid format is accepted and tags subsequently pushed frames,
// an unrecognized format is rejected with an error reply.
func TestServeHTTP_VideoConfigDispatch(t *testing.T) {
	srv, mgr := testServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "?call_id=call-1&user_id=alice"
	conn := dial(t, wsURL)

	require.Eventually(t, func() bool {
		c, ok := mgr.GetCall("call-1")
		return ok && c.ParticipantCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	msg, err := Encode(ControlVideoConfig, VideoConfigData{Width: 640, Height: 480, FPS: 30, Format: VideoFormatVP8})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	c, _ := mgr.GetCall("call-1")
	_, videoCh := c.SubscribeVideo()

	// The video_config dispatch races this goroutine's reader loop; keep
	// pushing frames until one comes back tagged with the applied format.
	deadline := time.After(2 * time.Second)
	configured := false
	for !configured {
		require.NoError(t, mgr.PushVideo("alice", []byte{1, 2, 3}))
		select {
		case frame := <-videoCh:
			configured = frame.Format == "vp8"
		case <-deadline:
			t.Fatal("expected a video frame tagged with the configured format")
		}
	}

	badMsg, err := Encode(ControlVideoConfig, VideoConfigData{Format: "theora"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, badMsg))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, ControlError, env.Type)
}

// TestServeHTTP_LegacyAudioEncodings covers the legacy base64 audio
// control path's Encoding field: a ulaw payload is decoded to PCM16
// before reaching the mixer.
func TestServeHTTP_LegacyAudioEncodings(t *testing.T) {
	srv, mgr := testServer(t)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "?call_id=call-1&user_id=alice"
	conn := dial(t, wsURL)

	require.Eventually(t, func() bool {
		c, ok := mgr.GetCall("call-1")
		return ok && c.ParticipantCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	c, _ := mgr.GetCall("call-1")
	_, audioCh := c.SubscribeAudio()

	raw := make([]byte, 320) // 320 ulaw bytes of silence, one PCM16 sample each
	for i := range raw {
		raw[i] = 0xFF
	}
	msg, err := Encode(ControlAudio, AudioData{
		SamplesBase64: base64.StdEncoding.EncodeToString(raw),
		Encoding:      EncodingUlaw,
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	select {
	case frame := <-audioCh:
		require.Equal(t, "alice", frame.SenderUserID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a decoded ulaw audio frame to reach the mixer")
	}
}
