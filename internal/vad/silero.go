// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package vad

import (
	"fmt"

	"github.com/streamer45/silero-vad-go/speech"
)

// sileroStage2 adapts github.com/streamer45/silero-vad-go's batch
// Detect([]float32) ([]Segment, error) API to the per-frame Probability
// call this package's state machine drives. silero-vad-go's detector
// keeps its own internal streaming state across Detect calls (the same
// pattern mattermost-calls-transcriber uses: feed it progressively larger
// chunks), so feeding it one 20ms frame at a time and checking whether
// this call produced a segment is a faithful online approximation of a
// per-frame probability, clamped to {0, 1}.
type sileroStage2 struct {
	det *speech.Detector
}

// NewSileroStage2 is the production Stage2 constructor, passed to vad.New
// as newStage2. It is intentionally a plain func value (not a method) so
// tests can substitute a stub without touching silero-vad-go at all.
func NewSileroStage2(cfg Config) (Stage2, error) {
	det, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           cfg.SampleRate,
		WindowSize:           512,
		Threshold:            cfg.StartThreshold,
		MinSilenceDurationMs: int(cfg.HangoverSilence.Milliseconds()),
		SpeechPadMs:          30,
	})
	if err != nil {
		return nil, fmt.Errorf("silero: new detector: %w", err)
	}
	return &sileroStage2{det: det}, nil
}

func (s *sileroStage2) Probability(frame []float32) (float32, error) {
	segs, err := s.det.Detect(frame)
	if err != nil {
		return 0, fmt.Errorf("silero: detect: %w", err)
	}
	if len(segs) > 0 {
		return 1, nil
	}
	return 0, nil
}

func (s *sileroStage2) Reset() {
	_ = s.det.Reset()
}

func (s *sileroStage2) Close() error {
	return s.det.Destroy()
}
