// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package resampler adapts github.com/tphakala/go-audio-resampler to the
// Config-to-Config shape used throughout the core. Its one caller is the
// VAD, which resamples a closed utterance to the STT rate (§4.3); wire and
// ring/live-frame audio is not resampled.
package resampler

import (
	"fmt"

	goresample "github.com/tphakala/go-audio-resampler"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/logging"
)

// Resampler converts PCM16 little-endian byte buffers between declared
// audio.Config sample rates.
type Resampler interface {
	Resample(data []byte, from, to *audio.Config) ([]byte, error)
}

type resampler struct {
	logger logging.Logger
}

// New builds a Resampler. Construction never fails; go-audio-resampler's
// filters are created lazily per source/target rate pair.
func New(logger logging.Logger) Resampler {
	return &resampler{logger: logger}
}

func (r *resampler) Resample(data []byte, from, to *audio.Config) ([]byte, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("resampler: nil audio config")
	}
	if from.SampleRate == to.SampleRate {
		return data, nil
	}
	samples := audio.BytesToInt16LE(data)
	out, err := goresample.ResampleInt16(samples, from.SampleRate, to.SampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}
	return audio.Int16ToBytesLE(out), nil
}
