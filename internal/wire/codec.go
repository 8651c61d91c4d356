// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package wire implements the connection-handling layer (§6, §7): the
// JSON control-message envelope and the binary frame codec carried over
// one gorilla/websocket connection per participant, plus the handler
// that bridges a connection to the CallManager.
package wire

import (
	"encoding/json"
	"fmt"
)

// FrameKind tags a binary WebSocket message's first byte (§6 "Binary
// frame format").
type FrameKind byte

const (
	FrameAudio       FrameKind = 0x01
	FrameVideo       FrameKind = 0x02
	FrameAvatarState FrameKind = 0x03
)

// EncodeBinaryFrame lays out [kind byte][sender_id_len byte][sender_id][payload],
// the framing every binary WebSocket message after the legacy raw-PCM
// fallback uses (§6).
func EncodeBinaryFrame(kind FrameKind, senderID string, payload []byte) ([]byte, error) {
	if len(senderID) > 255 {
		return nil, fmt.Errorf("wire: sender id too long for one-byte length prefix: %d", len(senderID))
	}
	out := make([]byte, 0, 2+len(senderID)+len(payload))
	out = append(out, byte(kind), byte(len(senderID)))
	out = append(out, senderID...)
	out = append(out, payload...)
	return out, nil
}

// DecodedFrame is one parsed binary WebSocket message.
type DecodedFrame struct {
	Kind     FrameKind
	SenderID string
	Payload  []byte
}

// DecodeBinaryFrame parses the framing EncodeBinaryFrame produces. A
// message too short to carry the kind+length prefix is treated as the
// legacy raw-PCM fallback: the whole message is the payload, kind Audio,
// sender ID empty (§6 "legacy clients that predate the frame header").
func DecodeBinaryFrame(data []byte) DecodedFrame {
	if len(data) < 2 {
		return DecodedFrame{Kind: FrameAudio, Payload: data}
	}
	kind := FrameKind(data[0])
	if kind != FrameAudio && kind != FrameVideo && kind != FrameAvatarState {
		return DecodedFrame{Kind: FrameAudio, Payload: data}
	}
	idLen := int(data[1])
	if len(data) < 2+idLen {
		return DecodedFrame{Kind: FrameAudio, Payload: data}
	}
	return DecodedFrame{
		Kind:     kind,
		SenderID: string(data[2 : 2+idLen]),
		Payload:  data[2+idLen:],
	}
}

// ControlType enumerates every JSON control-message "type" value (§6).
type ControlType string

const (
	ControlJoin             ControlType = "join"
	ControlLeave            ControlType = "leave"
	ControlAudio            ControlType = "audio" // legacy base64 audio, text frame
	ControlMute             ControlType = "mute"
	ControlVideoConfig      ControlType = "video_config"
	ControlParticipantJoin  ControlType = "participant_joined"
	ControlParticipantLeft  ControlType = "participant_left"
	ControlError            ControlType = "error"
	ControlStats            ControlType = "stats"
	ControlTranscription    ControlType = "transcription"
	ControlAvatarUpdate     ControlType = "avatar_update"
)

// Envelope is the outer shape of every JSON control message, inbound or
// outbound; Data's concrete type depends on Type (§6).
type Envelope struct {
	Type ControlType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinData is ControlJoin's payload: the client declares who it is and
// which model it's acting as, letting the server resolve capabilities
// (§4.7 join_call(call_id, user_id, display_name, is_ai)).
type JoinData struct {
	CallID      string `json:"call_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	IsAI        bool   `json:"is_ai,omitempty"`
	ModelID     string `json:"model_id,omitempty"`
	HasVideo    bool   `json:"has_video,omitempty"`
}

// LeaveData is ControlLeave's payload.
type LeaveData struct {
	UserID string `json:"user_id"`
}

// AudioData is the legacy text-frame audio path: base64-encoded audio
// samples, superseded by the binary frame format but still accepted
// (§6). Encoding defaults to raw PCM16 little-endian; "ulaw"/"alaw"
// select G.711 decode before the samples reach the mixer, for legacy
// telephony-bridge clients that never PCM-encode client-side.
type AudioData struct {
	SamplesBase64 string `json:"samples_base64"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	Encoding      string `json:"encoding,omitempty"`
}

// Encoding values AudioData.Encoding may declare.
const (
	EncodingPCM16 = "pcm16"
	EncodingUlaw  = "ulaw"
	EncodingAlaw  = "alaw"
)

// MuteData is ControlMute's payload.
type MuteData struct {
	Muted bool `json:"muted"`
}

// VideoConfigData declares this connection's video parameters (§6
// "video_config"): width, height, fps, format ∈ {rgba8, vp8, h264,
// jpeg}. Format is validated against that closed set by the handler;
// width/height/fps are informational, recorded for peers that need to
// size a decode buffer before the first frame arrives.
type VideoConfigData struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	FPS    int    `json:"fps"`
	Format string `json:"format"`
}

// VideoFormat values VideoConfigData.Format may declare (§6).
const (
	VideoFormatRGBA8 = "rgba8"
	VideoFormatVP8   = "vp8"
	VideoFormatH264  = "h264"
	VideoFormatJPEG  = "jpeg"
)

// ParticipantJoinedData/ParticipantLeftData mirror call.ParticipantJoined
// and call.ParticipantLeft for the wire (§6).
type ParticipantJoinedData struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type ParticipantLeftData struct {
	UserID string `json:"user_id"`
}

// ErrorData carries a server-side failure back to one connection (§7:
// errors are never broadcast, only returned to the connection that
// triggered them).
type ErrorData struct {
	Message string `json:"message"`
}

// StatsData mirrors call.Stats for the wire.
type StatsData struct {
	ParticipantCount int    `json:"participant_count"`
	SamplesProcessed uint64 `json:"samples_processed"`
}

// TranscriptionData mirrors call.Transcription for the wire.
type TranscriptionData struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Language    string  `json:"language,omitempty"`
}

// AvatarUpdateData carries a synthetic-avatar state change alongside the
// binary FrameAvatarState payload, for clients that render avatar state
// as a discrete JSON event rather than a continuous binary stream.
type AvatarUpdateData struct {
	UserID string `json:"user_id"`
	State  string `json:"state"`
}

// Encode marshals typ+data into an Envelope ready to send as a text
// WebSocket message.
func Encode(typ ControlType, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %s data: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Data: raw})
}

// Decode unmarshals a text WebSocket message's envelope, leaving Data
// for the caller to unmarshal into the type matching Type.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env, nil
}
