// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package call

import "github.com/confmesh/core/internal/handle"

// AudioFrame is one tick's worth of one sender's audio, the unit the
// audio broadcast carries for SFU forwarding (§4.2 step 4).
type AudioFrame struct {
	SenderHandle handle.Handle
	SenderUserID string
	Samples      []int16
	IsAmbient    bool
}

// VideoFrame is routed straight through with no copy beyond the
// broadcast fan-out itself (§4.4 video path). Format carries the
// sender's last-declared video_config encoding (§6), empty if the
// sender never declared one.
type VideoFrame struct {
	SenderHandle handle.Handle
	SenderUserID string
	Data         []byte
	Format       string
}

// VideoConfig is one participant's negotiated video parameters, set via
// the "video_config" control message (§6: width, height, fps, format ∈
// {rgba8, vp8, h264, jpeg}).
type VideoConfig struct {
	Width  int
	Height int
	FPS    int
	Format string
}

// ParticipantJoined is published when a Handle is added to the call.
type ParticipantJoined struct {
	UserID      string
	DisplayName string
}

// ParticipantLeft is published when a Handle is removed from the call.
type ParticipantLeft struct {
	UserID string
}

// Stats is a periodic/on-demand snapshot of call activity (§6).
type Stats struct {
	ParticipantCount int
	SamplesProcessed uint64
}

// Transcription is a completed STT result, broadcast on the
// transcription channel (§4.6, §6).
type Transcription struct {
	UserID      string
	DisplayName string
	Text        string
	Confidence  float64
	Language    string
}

// ControlEvent is published on the control channel: participant
// join/leave notices and stats. Errors surfaced to a specific connection
// are returned directly by the operation that failed rather than
// broadcast (§7).
type ControlEvent struct {
	Joined *ParticipantJoined
	Left   *ParticipantLeft
	Stats  *Stats
}
