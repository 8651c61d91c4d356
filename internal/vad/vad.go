// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package vad implements the two-stage voice activity detector and the
// sentence-boundary state machine described in §4.3: a cheap Stage-1
// energy gate confirms candidate speech regions, a Stage-2 neural
// detector confirms/extends them, and a rolling sentence buffer turns the
// confirmed region into one contiguous utterance per completed region.
package vad

import (
	"fmt"
	"time"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/audio/resampler"
	"github.com/confmesh/core/internal/logging"
)

// state is the VAD's own lifecycle, independent of any owning stream.
type state int

const (
	stateIdle state = iota
	stateSpeaking
	stateTrailingSilence
)

// Config tunes the two stages and the sentence buffer. DefaultConfig
// returns a fully populated Config; New does not fill in zero-value fields.
type Config struct {
	// SampleRate is the rate Process expects frames in (internal rate,
	// audio.SampleRate, unless the caller resamples first).
	SampleRate int

	// ModelPath is the Stage-2 silero-vad-go ONNX model path. Loading is
	// tolerant of failure: New degrades to a passthrough with no
	// sentence detection rather than erroring, matching
	// initialize_vad's documented edge case (§4.1).
	ModelPath string

	// EnergyStartThreshold is the Stage-1 RMS level that must be crossed
	// for EnergyDebounceFrames consecutive frames before a region can
	// open. Stage-2 is still evaluated on every frame; its probability
	// only opens a region once the debounce is satisfied.
	EnergyStartThreshold float64
	EnergyDebounceFrames int

	// StartThreshold/ReleaseThreshold are Stage-2 neural probabilities
	// (0..1) that open/close a speech region.
	StartThreshold   float32
	ReleaseThreshold float32

	// HangoverSilence is how long TrailingSilence must persist before the
	// region closes and the utterance is emitted (§4.3: "typical
	// ~300-500ms"). It is measured in wall-clock time between Process
	// calls, not in samples, as is HardCap.
	HangoverSilence time.Duration

	// HardCap bounds how long a single open region may run before it is
	// force-closed, guarding against hung state (§4.3: "e.g. 20s").
	HardCap time.Duration

	// STTSampleRate is the rate the emitted utterance is resampled to
	// before handoff (§4.3: "typically 16kHz").
	STTSampleRate int
}

// DefaultConfig returns the tuning used in production: a 200ms Stage-1
// debounce, 400ms hang-over, and a 20s hard cap, all at the core's
// internal 16kHz working rate.
func DefaultConfig() Config {
	return Config{
		SampleRate:            audio.SampleRate,
		EnergyStartThreshold:  300,
		EnergyDebounceFrames:  10, // 10 * 20ms = 200ms
		StartThreshold:        0.5,
		ReleaseThreshold:      0.35,
		HangoverSilence:       400 * time.Millisecond,
		HardCap:               20 * time.Second,
		STTSampleRate:         audio.SampleRate,
	}
}

// Stage2 is the neural confirmation stage. Implementations need only
// answer "does this frame look like speech" as a 0..1 probability; Silero
// backs the production implementation, a stub backs tests that don't want
// to load a model file.
type Stage2 interface {
	// Probability returns the speech probability for one frame of
	// float32 PCM samples in [-1, 1].
	Probability(frame []float32) (float32, error)
	Reset()
	Close() error
}

// Utterance is one contiguous speech region, ready for transcription.
type Utterance struct {
	Samples    []int16
	SampleRate int
	StartedAt  time.Time
	EndedAt    time.Time
}

// Detector is one participant's two-stage VAD plus sentence buffer. It is
// not safe for concurrent use; callers serialize through the owning
// ParticipantStream.
type Detector struct {
	cfg       Config
	logger    logging.Logger
	stage2    Stage2
	resampler resampler.Resampler

	state          state
	energyStreak   int
	region         []int16
	regionStart    time.Time
	silenceSince   time.Time
	passthrough    bool // true when Stage-2 failed to load: no sentence detection
}

// New builds a Detector. newStage2 constructs the neural stage; passing a
// constructor that can fail lets New degrade to passthrough mode exactly
// the way ParticipantStream.initialize_vad is documented to (§4.1): a
// Stage-2 load failure never prevents the stream from being created, it
// only disables utterance emission.
func New(cfg Config, logger logging.Logger, newStage2 func(cfg Config) (Stage2, error)) *Detector {
	d := &Detector{cfg: cfg, logger: logger, resampler: resampler.New(logger)}
	stage2, err := newStage2(cfg)
	if err != nil {
		logger.Warnw("vad: stage-2 model load failed, degrading to passthrough",
			"error", err.Error())
		d.passthrough = true
		return d
	}
	d.stage2 = stage2
	return d
}

// Process consumes one tick's worth of PCM16 samples and returns a
// completed Utterance if this push closed an open region (hang-over
// elapsed, or the hard cap was hit), otherwise (nil, nil). It never
// returns an empty utterance.
func (d *Detector) Process(samples []int16) (*Utterance, error) {
	if d.passthrough || len(samples) == 0 {
		return nil, nil
	}

	frame := audio.Int16ToFloat32(samples)
	prob, err := d.stage2.Probability(frame)
	if err != nil {
		return nil, fmt.Errorf("vad: stage-2 probability: %w", err)
	}

	energyUp := audio.CalculateRMS(samples) >= d.cfg.EnergyStartThreshold
	if energyUp {
		d.energyStreak++
	} else {
		d.energyStreak = 0
	}
	stage1Confirmed := d.energyStreak >= d.cfg.EnergyDebounceFrames

	now := time.Now()

	switch d.state {
	case stateIdle:
		if stage1Confirmed && prob >= d.cfg.StartThreshold {
			d.state = stateSpeaking
			d.regionStart = now
			d.region = append(d.region[:0], samples...)
		}
		return nil, nil

	case stateSpeaking:
		d.region = append(d.region, samples...)
		if prob < d.cfg.ReleaseThreshold {
			d.state = stateTrailingSilence
			d.silenceSince = now
		}
		if now.Sub(d.regionStart) >= d.cfg.HardCap {
			return d.emit(now)
		}
		return nil, nil

	case stateTrailingSilence:
		d.region = append(d.region, samples...)
		if prob >= d.cfg.StartThreshold {
			// Speech resumed during hang-over: merge into the same
			// region rather than closing it (§4.3).
			d.state = stateSpeaking
			return nil, nil
		}
		if now.Sub(d.silenceSince) >= d.cfg.HangoverSilence {
			return d.emit(now)
		}
		if now.Sub(d.regionStart) >= d.cfg.HardCap {
			return d.emit(now)
		}
		return nil, nil
	}
	return nil, nil
}

func (d *Detector) emit(now time.Time) (*Utterance, error) {
	if len(d.region) == 0 {
		d.state = stateIdle
		return nil, nil
	}
	samples := make([]int16, len(d.region))
	copy(samples, d.region)
	u := &Utterance{
		Samples:    samples,
		SampleRate: d.cfg.SampleRate,
		StartedAt:  d.regionStart,
		EndedAt:    now,
	}
	if d.cfg.STTSampleRate != 0 && d.cfg.STTSampleRate != d.cfg.SampleRate {
		from := &audio.Config{SampleRate: d.cfg.SampleRate}
		to := &audio.Config{SampleRate: d.cfg.STTSampleRate}
		resampled, err := d.resampler.Resample(audio.Int16ToBytesLE(u.Samples), from, to)
		if err != nil {
			d.logger.Warnw("vad: utterance resample failed, emitting at source rate",
				"from", d.cfg.SampleRate, "to", d.cfg.STTSampleRate, "error", err.Error())
		} else {
			u.Samples = audio.BytesToInt16LE(resampled)
			u.SampleRate = d.cfg.STTSampleRate
		}
	}
	d.region = d.region[:0]
	d.state = stateIdle
	return u, nil
}

// Reset discards any open region without emitting, used when the owning
// stream is muted (§8 scenario 4: no samples captured after mute may
// appear in an emitted utterance — discarding on mute is the behavior
// this core picks, see DESIGN.md).
func (d *Detector) Reset() {
	d.state = stateIdle
	d.region = d.region[:0]
	d.energyStreak = 0
	if d.stage2 != nil {
		d.stage2.Reset()
	}
}

// Passthrough reports whether Stage-2 failed to load, i.e. this Detector
// never emits utterances.
func (d *Detector) Passthrough() bool {
	return d.passthrough
}

// Open reports whether a speech region is currently open (Speaking or
// TrailingSilence), for callers that want a live "is this participant
// speaking right now" signal.
func (d *Detector) Open() bool {
	return d.state != stateIdle
}

// Close releases the Stage-2 model's resources.
func (d *Detector) Close() error {
	if d.stage2 != nil {
		return d.stage2.Close()
	}
	return nil
}

