// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package tts defines the synthesis interface the router's TTS bridge
// (§4.5) and Call's speak-in-call path (§4.7) consume. The concrete
// model is an adapter concern, e.g. the azure subpackage.
package tts

import "context"

// Request is one piece of text to synthesize.
type Request struct {
	Text  string
	Voice string
}

// Result is synthesized audio, already PCM16 at SampleRate — the core
// contracts on "PCM16, sample rate declared by the synthesis result"
// (§9 open question). The injection path does not resample: samples are
// pushed into the mixer as-is, whatever SampleRate declares.
type Result struct {
	Samples    []int16
	SampleRate int
}

// Synthesizer turns text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}
