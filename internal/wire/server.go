// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package wire

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/audio/codec"
	"github.com/confmesh/core/internal/call"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/manager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server bridges WebSocket connections to a CallManager: one connection
// per participant, carrying the JSON control envelope and binary frame
// formats defined in codec.go (§6, §7).
type Server struct {
	manager *manager.CallManager
	logger  logging.Logger
}

// New builds a Server over mgr.
func New(mgr *manager.CallManager, logger logging.Logger) *Server {
	return &Server{manager: mgr, logger: logger}
}

// ServeHTTP upgrades the request and runs the connection until it
// closes. If call_id/user_id are present as query parameters (the
// original's handle_connection convention: identity resolved before the
// WebSocket loop began), join happens immediately. Otherwise the
// connection's first message must be a "join" control envelope (§6
// ControlJoin/JoinData) — the wire-native join path. Both paths can
// declare is_ai and model_id (as query parameters or as JoinData fields).
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warnw("wire: upgrade failed", "error", err.Error())
		return
	}

	q := r.URL.Query()
	callID := q.Get("call_id")
	userID := q.Get("user_id")
	displayName := q.Get("display_name")
	modelID := q.Get("model_id")
	isAI := q.Get("is_ai") == "true"

	if callID == "" || userID == "" {
		jd, err := srv.awaitJoin(conn)
		if err != nil {
			srv.writeError(conn, err.Error())
			conn.Close()
			return
		}
		callID, userID, displayName, modelID, isAI = jd.CallID, jd.UserID, jd.DisplayName, jd.ModelID, jd.IsAI
	}
	if displayName == "" {
		displayName = userID
	}

	srv.handleConnection(r.Context(), conn, callID, userID, displayName, modelID, isAI)
}

// awaitJoin blocks for the connection's first message, requiring it to
// be a well-formed "join" control envelope (§6). Used when the upgrade
// request carried no call_id/user_id query parameters.
func (srv *Server) awaitJoin(conn *websocket.Conn) (JoinData, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return JoinData{}, fmt.Errorf("wire: no join message received: %w", err)
	}
	if msgType != websocket.TextMessage {
		return JoinData{}, fmt.Errorf("wire: first message must be a join control message")
	}
	env, err := Decode(data)
	if err != nil || env.Type != ControlJoin {
		return JoinData{}, fmt.Errorf("wire: first message must be a join control message")
	}
	var jd JoinData
	if err := json.Unmarshal(env.Data, &jd); err != nil {
		return JoinData{}, fmt.Errorf("wire: malformed join data: %w", err)
	}
	if jd.CallID == "" || jd.UserID == "" {
		return JoinData{}, fmt.Errorf("wire: call_id and user_id are required")
	}
	return jd, nil
}

// connState is one connection's mutable bookkeeping: its write mutex (a
// gorilla/websocket connection supports only one concurrent writer).
// Broadcast subscriptions are held and released by writerLoop itself.
type connState struct {
	writeMu sync.Mutex
}

func (srv *Server) handleConnection(ctx context.Context, conn *websocket.Conn, callID, userID, displayName, modelID string, isAI bool) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := srv.manager.JoinCallWithModel(connCtx, callID, userID, displayName, modelID, isAI)
	defer func() {
		if err := srv.manager.LeaveCall(userID); err != nil {
			srv.logger.Warnw("wire: leave on disconnect failed", "user_id", userID, "error", err.Error())
		}
	}()

	c, ok := srv.manager.GetCall(callID)
	if !ok {
		srv.writeError(conn, "call not found")
		return
	}

	cs := &connState{}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		srv.writerLoop(connCtx, conn, cs, c, h)
	}()

	srv.readerLoop(connCtx, conn, cs, callID, userID, displayName)
	cancel()
	wg.Wait()
}

// readerLoop consumes inbound messages until the connection closes or
// ctx is cancelled.
func (srv *Server) readerLoop(ctx context.Context, conn *websocket.Conn, cs *connState, callID, userID, displayName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				srv.logger.Warnw("wire: read error", "user_id", userID, "error", err.Error())
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			srv.handleBinaryFrame(ctx, data, callID, userID)
		case websocket.TextMessage:
			srv.handleControlMessage(ctx, conn, cs, data, callID, userID, displayName)
		}
	}
}

func (srv *Server) handleBinaryFrame(ctx context.Context, data []byte, callID, userID string) {
	frame := DecodeBinaryFrame(data)
	switch frame.Kind {
	case FrameVideo:
		if err := srv.manager.PushVideo(userID, frame.Payload); err != nil {
			srv.logger.Warnw("wire: push video failed", "user_id", userID, "error", err.Error())
		}
	case FrameAudio:
		samples := audio.BytesToInt16LE(frame.Payload)
		if err := srv.manager.PushAudio(ctx, callID, userID, "", samples); err != nil {
			srv.logger.Warnw("wire: push audio failed", "user_id", userID, "error", err.Error())
		}
	default:
		srv.logger.Warnw("wire: unhandled binary frame kind", "kind", frame.Kind)
	}
}

// decodeLegacyAudio converts AudioData.SamplesBase64's decoded bytes to
// PCM16 little-endian according to its declared encoding (§6), for
// telephony-bridge clients whose legacy payload is G.711-compressed
// rather than already PCM.
func decodeLegacyAudio(raw []byte, encoding string) ([]byte, error) {
	switch encoding {
	case "", EncodingPCM16:
		return raw, nil
	case EncodingUlaw:
		pcm, err := codec.DecodeUlaw(raw)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		return pcm, nil
	case EncodingAlaw:
		pcm, err := codec.DecodeAlaw(raw)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		return pcm, nil
	default:
		return nil, fmt.Errorf("wire: unrecognized audio encoding %q", encoding)
	}
}

func (srv *Server) handleControlMessage(ctx context.Context, conn *websocket.Conn, cs *connState, data []byte, callID, userID, displayName string) {
	env, err := Decode(data)
	if err != nil {
		srv.writeErrorLocked(conn, cs, "malformed control message")
		return
	}

	switch env.Type {
	case ControlJoin:
		// Identity is already established for this connection (either
		// via query parameters or awaitJoin before the reader loop
		// started); a join received here is a late/redundant re-send,
		// not a state transition.
		srv.logger.Debugw("wire: ignoring join message on an already-joined connection", "user_id", userID)

	case ControlAudio:
		var ad AudioData
		if err := json.Unmarshal(env.Data, &ad); err != nil {
			srv.writeErrorLocked(conn, cs, "malformed audio data")
			return
		}
		raw, err := base64.StdEncoding.DecodeString(ad.SamplesBase64)
		if err != nil {
			srv.writeErrorLocked(conn, cs, "invalid base64 audio")
			return
		}
		pcm, err := decodeLegacyAudio(raw, ad.Encoding)
		if err != nil {
			srv.writeErrorLocked(conn, cs, err.Error())
			return
		}
		samples := audio.BytesToInt16LE(pcm)
		if err := srv.manager.PushAudio(ctx, callID, userID, displayName, samples); err != nil {
			srv.logger.Warnw("wire: legacy push audio failed", "user_id", userID, "error", err.Error())
		}

	case ControlVideoConfig:
		var vd VideoConfigData
		if err := json.Unmarshal(env.Data, &vd); err != nil {
			srv.writeErrorLocked(conn, cs, "malformed video config data")
			return
		}
		switch vd.Format {
		case VideoFormatRGBA8, VideoFormatVP8, VideoFormatH264, VideoFormatJPEG:
		default:
			srv.writeErrorLocked(conn, cs, fmt.Sprintf("wire: unrecognized video format %q", vd.Format))
			return
		}
		if err := srv.manager.SetVideoConfig(userID, call.VideoConfig{
			Width:  vd.Width,
			Height: vd.Height,
			FPS:    vd.FPS,
			Format: vd.Format,
		}); err != nil {
			srv.writeErrorLocked(conn, cs, err.Error())
		}

	case ControlMute:
		var md MuteData
		if err := json.Unmarshal(env.Data, &md); err != nil {
			srv.writeErrorLocked(conn, cs, "malformed mute data")
			return
		}
		if err := srv.manager.SetMuted(userID, md.Muted); err != nil {
			srv.writeErrorLocked(conn, cs, err.Error())
		}

	case ControlLeave:
		if err := srv.manager.LeaveCall(userID); err != nil {
			srv.writeErrorLocked(conn, cs, err.Error())
		}

	default:
		srv.logger.Debugw("wire: unhandled control type", "type", env.Type)
	}
}

// writerLoop fans every broadcast channel for c out to conn, filtering
// audio/video frames the connection's own Handle sent — the SFU
// mix-minus rule applied at the wire boundary (§4.2, §6).
func (srv *Server) writerLoop(ctx context.Context, conn *websocket.Conn, cs *connState, c *call.Call, self handle.Handle) {
	audioID, audioCh := c.SubscribeAudio()
	videoID, videoCh := c.SubscribeVideo()
	transcriptionID, transcriptionCh := c.SubscribeTranscription()
	controlID, controlCh := c.SubscribeControl()
	defer c.UnsubscribeAudio(audioID)
	defer c.UnsubscribeVideo(videoID)
	defer c.UnsubscribeTranscription(transcriptionID)
	defer c.UnsubscribeControl(controlID)

	selfHandle := self.String()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-audioCh:
			if !ok {
				return
			}
			if frame.SenderHandle.String() == selfHandle {
				continue
			}
			payload, err := EncodeBinaryFrame(FrameAudio, frame.SenderUserID, audio.Int16ToBytesLE(frame.Samples))
			if err != nil {
				continue
			}
			srv.writeBinaryLocked(conn, cs, payload)

		case frame, ok := <-videoCh:
			if !ok {
				return
			}
			if frame.SenderHandle.String() == selfHandle {
				continue
			}
			payload, err := EncodeBinaryFrame(FrameVideo, frame.SenderUserID, frame.Data)
			if err != nil {
				continue
			}
			srv.writeBinaryLocked(conn, cs, payload)

		case t, ok := <-transcriptionCh:
			if !ok {
				return
			}
			msg, err := Encode(ControlTranscription, TranscriptionData{
				UserID:      t.UserID,
				DisplayName: t.DisplayName,
				Text:        t.Text,
				Confidence:  t.Confidence,
				Language:    t.Language,
			})
			if err != nil {
				continue
			}
			srv.writeTextLocked(conn, cs, msg)

		case ev, ok := <-controlCh:
			if !ok {
				return
			}
			srv.forwardControlEvent(conn, cs, ev)

		case <-ticker.C:
			srv.writeTextLocked(conn, cs, mustEncodePing())
		}
	}
}

func (srv *Server) forwardControlEvent(conn *websocket.Conn, cs *connState, ev call.ControlEvent) {
	var (
		msg []byte
		err error
	)
	switch {
	case ev.Joined != nil:
		msg, err = Encode(ControlParticipantJoin, ParticipantJoinedData{UserID: ev.Joined.UserID, DisplayName: ev.Joined.DisplayName})
	case ev.Left != nil:
		msg, err = Encode(ControlParticipantLeft, ParticipantLeftData{UserID: ev.Left.UserID})
	case ev.Stats != nil:
		msg, err = Encode(ControlStats, StatsData{ParticipantCount: ev.Stats.ParticipantCount, SamplesProcessed: ev.Stats.SamplesProcessed})
	default:
		return
	}
	if err != nil {
		return
	}
	srv.writeTextLocked(conn, cs, msg)
}

func (srv *Server) writeError(conn *websocket.Conn, message string) {
	msg, err := Encode(ControlError, ErrorData{Message: message})
	if err != nil {
		return
	}
	conn.WriteMessage(websocket.TextMessage, msg)
}

func (srv *Server) writeErrorLocked(conn *websocket.Conn, cs *connState, message string) {
	msg, err := Encode(ControlError, ErrorData{Message: message})
	if err != nil {
		return
	}
	srv.writeTextLocked(conn, cs, msg)
}

func (srv *Server) writeTextLocked(conn *websocket.Conn, cs *connState, msg []byte) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		srv.logger.Debugw("wire: write text failed", "error", err.Error())
	}
}

func (srv *Server) writeBinaryLocked(conn *websocket.Conn, cs *connState, payload []byte) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		srv.logger.Debugw("wire: write binary failed", "error", err.Error())
	}
}

func mustEncodePing() []byte {
	msg, _ := Encode(ControlType("ping"), struct{}{})
	return msg
}
