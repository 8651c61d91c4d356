// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package call implements Call (§4.4): one conference instance, wrapping
// an AudioMixer with the four broadcast channels and the 20ms driver
// loop, including hold-music substitution for a lone silent participant.
package call

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/handle"
	"github.com/confmesh/core/internal/holdmusic"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/mixer"
	"github.com/confmesh/core/internal/stream"
	"github.com/confmesh/core/internal/vad"
)

// holdMusicHandle is the synthetic sender handle substituted when a lone
// human's mix would otherwise be silent. It is minted once at process
// start, distinct from any real Handle, and never registered in the
// mixer itself (it bypasses mix-minus exclusion entirely, §4.4).
var holdMusicHandle = handle.New()

// silenceRMSThreshold is the energy below which a frame counts as
// "silent" for hold-music substitution purposes.
const silenceRMSThreshold = 50.0

// Config tunes one Call's broadcast capacities and tick cadence.
type Config struct {
	FrameDuration                time.Duration
	AudioChannelCapacity         int
	VideoChannelCapacity         int
	TranscriptionChannelCapacity int
	ControlChannelCapacity       int
	HasVideo                     bool
}

// DefaultConfig matches §3's documented capacities: ~40s of frames per
// sender for audio, hundreds of events for transcription.
func DefaultConfig() Config {
	return Config{
		FrameDuration:                audio.FrameDurationMs * time.Millisecond,
		AudioChannelCapacity:         audio.AudioChannelCapacity,
		VideoChannelCapacity:         audio.VideoChannelCapacity,
		TranscriptionChannelCapacity: audio.TranscriptionChannelCapacity,
		ControlChannelCapacity:       audio.ControlChannelCapacity,
	}
}

// Call is one conference instance.
type Call struct {
	ID     string
	cfg    Config
	logger logging.Logger

	// mu is the single lock covering the mixer
	// (§5: "Each Call is behind one write lock covering its mixer").
	// holdMusic and holdMusicArmed are not under mu; only the driver
	// loop's tick touches them.
	mu    sync.Mutex
	mixer *mixer.Mixer

	holdMusic        *holdmusic.Source
	holdMusicArmed   bool // true once hold music has been substituted at least once
	samplesProcessed atomic.Uint64

	videoConfigs map[handle.Handle]VideoConfig

	audioBC         *broadcast[AudioFrame]
	videoBC         *broadcast[VideoFrame]
	transcriptionBC *broadcast[Transcription]
	controlBC       *broadcast[ControlEvent]

	shutdown chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

// New builds an idle Call; Start must be called to run its driver loop.
func New(id string, cfg Config, logger logging.Logger) *Call {
	return &Call{
		ID:              id,
		cfg:             cfg,
		logger:          logger,
		mixer:           mixer.New(logger),
		holdMusic:       holdmusic.New(),
		videoConfigs:    make(map[handle.Handle]VideoConfig),
		audioBC:         newBroadcast[AudioFrame](cfg.AudioChannelCapacity, "audio", logger),
		videoBC:         newBroadcast[VideoFrame](cfg.VideoChannelCapacity, "video", logger),
		transcriptionBC: newBroadcast[Transcription](cfg.TranscriptionChannelCapacity, "transcription", logger),
		controlBC:       newBroadcast[ControlEvent](cfg.ControlChannelCapacity, "control", logger),
		shutdown:        make(chan struct{}),
	}
}

// AddParticipant registers s in the mixer and publishes a
// ParticipantJoined control event.
func (c *Call) AddParticipant(s *stream.Stream) {
	c.mu.Lock()
	c.mixer.AddStream(s)
	c.mu.Unlock()

	c.controlBC.Publish(ControlEvent{Joined: &ParticipantJoined{UserID: s.UserID(), DisplayName: s.DisplayName()}})
}

// RemoveParticipant unregisters h and publishes a ParticipantLeft event.
// It returns the removed stream so the caller (CallManager) can Close it.
func (c *Call) RemoveParticipant(h handle.Handle) (*stream.Stream, bool) {
	c.mu.Lock()
	s, ok := c.mixer.RemoveStream(h)
	delete(c.videoConfigs, h)
	c.mu.Unlock()

	if ok {
		c.controlBC.Publish(ControlEvent{Left: &ParticipantLeft{UserID: s.UserID()}})
	}
	return s, ok
}

// SetMuted toggles h's mute state (§6 "mute" control message). Muting a
// stream with an open speech region discards it, per Stream.SetMuted.
func (c *Call) SetMuted(h handle.Handle, muted bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.mixer.Get(h)
	if !ok {
		return false
	}
	s.SetMuted(muted)
	return true
}

// ParticipantCount reports the number of registered streams (real plus
// ambient).
func (c *Call) ParticipantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mixer.Len()
}

// IsEmpty reports whether the call has no registered streams.
func (c *Call) IsEmpty() bool {
	return c.ParticipantCount() == 0
}

// PushAudio routes samples to h's stream under the mixer lock, releasing
// it before returning — the caller decides whether to hand any returned
// utterance to the TranscriptionGate, entirely outside this lock (§4.7:
// "minimum-scope lock sequence").
func (c *Call) PushAudio(h handle.Handle, samples []int16) (*vad.Utterance, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mixer.PushAudio(h, samples)
}

// InjectAudio pushes already-synthesized audio (TTS output, peer
// recording, etc.) into h's stream — identical to a normal push (§4.4,
// §4.5: "a standard inject ... identical to the injection from §4.4").
func (c *Call) InjectAudio(h handle.Handle, samples []int16) error {
	_, _, err := c.PushAudio(h, samples)
	return err
}

// SetVideoConfig records h's negotiated video parameters (§6
// "video_config"), consulted by PushVideo to tag outbound frames with
// their encoding. Returns false if h is not a registered participant.
func (c *Call) SetVideoConfig(h handle.Handle, cfg VideoConfig) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.mixer.Get(h); !ok {
		return false
	}
	c.videoConfigs[h] = cfg
	return true
}

// PushVideo resolves h's user_id and declared video format under a brief
// hold of the mixer lock, then publishes without copying the payload
// (§4.4 video path).
func (c *Call) PushVideo(h handle.Handle, data []byte) (published bool) {
	c.mu.Lock()
	s, ok := c.mixer.Get(h)
	format := c.videoConfigs[h].Format
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.videoBC.Publish(VideoFrame{SenderHandle: h, SenderUserID: s.UserID(), Data: data, Format: format})
	return true
}

// Stats returns a snapshot of call activity (§6 "stats" control message).
func (c *Call) Stats() Stats {
	return Stats{
		ParticipantCount: c.ParticipantCount(),
		SamplesProcessed: c.samplesProcessed.Load(),
	}
}

// SamplesProcessed returns the monotonically increasing sample counter
// (§3: "increases strictly monotonically by exactly frame_size per
// tick").
func (c *Call) SamplesProcessed() uint64 {
	return c.samplesProcessed.Load()
}

func (c *Call) SubscribeAudio() (int, <-chan AudioFrame)                 { return c.audioBC.Subscribe() }
func (c *Call) UnsubscribeAudio(id int)                                  { c.audioBC.Unsubscribe(id) }
func (c *Call) SubscribeVideo() (int, <-chan VideoFrame)                 { return c.videoBC.Subscribe() }
func (c *Call) UnsubscribeVideo(id int)                                  { c.videoBC.Unsubscribe(id) }
func (c *Call) SubscribeTranscription() (int, <-chan Transcription)      { return c.transcriptionBC.Subscribe() }
func (c *Call) UnsubscribeTranscription(id int)                          { c.transcriptionBC.Unsubscribe(id) }
func (c *Call) SubscribeControl() (int, <-chan ControlEvent)             { return c.controlBC.Subscribe() }
func (c *Call) UnsubscribeControl(id int)                                { c.controlBC.Unsubscribe(id) }

// PublishTranscription broadcasts a completed transcription event,
// called by the TranscriptionGate's completion callback outside any
// mixer lock (§4.6).
func (c *Call) PublishTranscription(t Transcription) {
	c.transcriptionBC.Publish(t)
}

// Start runs the 20ms driver loop until Stop is called or ctx is
// cancelled (§4.4 driver loop).
func (c *Call) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// Stop signals the driver loop to exit before its next tick. Safe to
// call multiple times.
func (c *Call) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.shutdown)
	})
}

func (c *Call) tick() {
	c.mu.Lock()
	if c.mixer.RealParticipantCount() == 0 {
		c.mu.Unlock()
		return
	}
	result := c.mixer.Tick()
	c.mu.Unlock()

	c.samplesProcessed.Add(audio.FrameSize)

	c.maybeSubstituteHoldMusic(&result)

	for _, frame := range result.SenderFrames {
		c.audioBC.Publish(AudioFrame{
			SenderHandle: frame.Handle,
			SenderUserID: frame.UserID,
			Samples:      frame.Samples,
			IsAmbient:    frame.IsAmbient,
		})
	}
}

// maybeSubstituteHoldMusic implements §4.4's hold-music rule: on every
// tick where the call has exactly one real participant and that
// participant's cached audio is silent, inject one frame of hold music as a
// synthetic sender, summed into their own mix-minus output too (the
// listener otherwise has no one else to hear). The position cursor wraps
// and never resets.
func (c *Call) maybeSubstituteHoldMusic(result *mixer.TickResult) {
	c.mu.Lock()
	realCount := c.mixer.RealParticipantCount()
	c.mu.Unlock()
	if realCount != 1 {
		return
	}

	silent := true
	for _, frame := range result.SenderFrames {
		if frame.IsAmbient {
			continue
		}
		if audio.CalculateRMS(frame.Samples) > silenceRMSThreshold {
			silent = false
			break
		}
	}
	if !silent {
		return
	}

	frame := c.holdMusic.Next(audio.FrameSize)
	c.holdMusicArmed = true

	result.SenderFrames = append(result.SenderFrames, mixer.SenderFrame{
		Handle:    holdMusicHandle,
		UserID:    "hold-music",
		Samples:   frame,
		IsAmbient: true,
	})
	for listener, mix := range result.ListenerMixes {
		if listener == holdMusicHandle {
			continue
		}
		result.ListenerMixes[listener] = sumInto(mix, frame)
	}
}

func sumInto(mix, frame []int16) []int16 {
	out := make([]int16, len(mix))
	copy(out, mix)
	for i := 0; i < len(out) && i < len(frame); i++ {
		out[i] = audio.ClampToInt16(int32(out[i]) + int32(frame[i]))
	}
	return out
}
