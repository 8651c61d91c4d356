// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package azure adapts Microsoft Cognitive Services Speech to
// tts.Synthesizer, used by the router's TTS bridge (§4.5) whenever a
// text-output-only participant's output must reach audio-capable peers.
package azure

import (
	"context"
	"fmt"

	msspeech "github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/tts"
)

// Options configures the Azure Speech subscription and default voice.
type Options struct {
	SubscriptionKey string
	Region          string
	DefaultVoice    string
}

// Synthesizer bridges text to PCM16 16kHz mono via Azure's in-memory
// speech synthesizer (no audio output config: results arrive as raw
// bytes rather than being played to a device).
type Synthesizer struct {
	cfg    *msspeech.SpeechConfig
	opts   Options
	logger logging.Logger
}

// New builds a Synthesizer, configuring the output format to match the
// core's internal working rate so no resample is needed on injection.
func New(opts Options, logger logging.Logger) (*Synthesizer, error) {
	cfg, err := msspeech.NewSpeechConfigFromSubscription(opts.SubscriptionKey, opts.Region)
	if err != nil {
		return nil, fmt.Errorf("azure tts: speech config: %w", err)
	}
	if err := cfg.SetSpeechSynthesisOutputFormat(msspeech.Raw16Khz16BitMonoPcm); err != nil {
		return nil, fmt.Errorf("azure tts: output format: %w", err)
	}
	if opts.DefaultVoice != "" {
		if err := cfg.SetSpeechSynthesisVoiceName(opts.DefaultVoice); err != nil {
			return nil, fmt.Errorf("azure tts: voice: %w", err)
		}
	}
	return &Synthesizer{cfg: cfg, opts: opts, logger: logger}, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	synthesizer, err := msspeech.NewSpeechSynthesizerFromConfig(s.cfg, nil)
	if err != nil {
		return tts.Result{}, fmt.Errorf("azure tts: new synthesizer: %w", err)
	}
	defer synthesizer.Close()

	voice := req.Voice
	if voice == "" {
		voice = s.opts.DefaultVoice
	}
	if voice != "" {
		if err := s.cfg.SetSpeechSynthesisVoiceName(voice); err != nil {
			return tts.Result{}, fmt.Errorf("azure tts: set voice: %w", err)
		}
	}

	task := synthesizer.SpeakTextAsync(req.Text)
	select {
	case outcome := <-task:
		if outcome.Error != nil {
			return tts.Result{}, fmt.Errorf("azure tts: speak: %w", outcome.Error)
		}
		defer outcome.Result.Close()
		samples := audio.BytesToInt16LE(outcome.Result.AudioData)
		return tts.Result{Samples: samples, SampleRate: audio.SampleRate}, nil
	case <-ctx.Done():
		return tts.Result{}, ctx.Err()
	}
}
