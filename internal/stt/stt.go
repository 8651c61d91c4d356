// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package stt defines the transcription interface TranscriptionGate
// consumes. The core only contracts on "PCM16, sample rate declared by
// the utterance" (§9 open question); the concrete model is an adapter
// concern, e.g. the deepgram subpackage.
package stt

import "context"

// Request is one utterance to transcribe.
type Request struct {
	Samples    []int16
	SampleRate int
}

// Result is a completed transcription.
type Result struct {
	Text       string
	Confidence float64
	Language   string
}

// Transcriber synthesizes audio into text. Implementations are expected
// to bound their own wall-clock time internally (§5: "a hung STT
// implementation would block the gate").
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}
