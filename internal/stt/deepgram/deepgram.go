// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package deepgram adapts Deepgram's pre-recorded transcription API to
// stt.Transcriber, grounded on the teacher's SpeechToTextOptions shape
// (model "nova", language "en-US", linear16 encoding, smart formatting).
package deepgram

import (
	"bytes"
	"context"
	"fmt"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/prerecorded"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces/v1"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/stt"
)

// Options mirrors the teacher's SpeechToTextOptions: nova model,
// en-US, mono, smart-formatted, linear16.
type Options struct {
	APIKey   string
	Model    string
	Language string
}

// DefaultOptions matches the teacher's documented defaults.
func DefaultOptions(apiKey string) Options {
	return Options{APIKey: apiKey, Model: "nova", Language: "en-US"}
}

// Transcriber bridges completed VAD utterances to Deepgram's
// pre-recorded REST endpoint — a natural fit since TranscriptionGate
// already hands it a finished, bounded utterance rather than a live
// stream.
type Transcriber struct {
	client *prerecorded.Client
	opts   Options
	logger logging.Logger
}

// New builds a Transcriber from Options.
func New(opts Options, logger logging.Logger) (*Transcriber, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("deepgram: missing api key")
	}
	client := prerecorded.NewWithDefaults()
	return &Transcriber{client: client, opts: opts, logger: logger}, nil
}

func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	wav := audio.EncodeWAV(req.Samples, req.SampleRate)

	dgOpts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.opts.Model,
		Language:    t.opts.Language,
		Channels:    audio.Channels,
		SmartFormat: true,
		Encoding:    "linear16",
		SampleRate:  req.SampleRate,
	}

	res, err := t.client.FromStream(ctx, bytes.NewReader(wav), dgOpts)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: transcribe: %w", err)
	}

	alt := firstAlternative(res)
	return stt.Result{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Language:   t.opts.Language,
	}, nil
}

type alternative struct {
	Transcript string
	Confidence float64
}

// firstAlternative pulls the top transcription alternative out of
// Deepgram's nested channel/alternatives response shape, defensively
// defaulting to empty on any unexpected shape rather than panicking —
// an empty Result.Text is silently dropped by the caller (§4.6).
func firstAlternative(res *prerecorded.PreRecordedResponse) alternative {
	if res == nil || len(res.Results.Channels) == 0 {
		return alternative{}
	}
	ch := res.Results.Channels[0]
	if len(ch.Alternatives) == 0 {
		return alternative{}
	}
	alt := ch.Alternatives[0]
	return alternative{Transcript: alt.Transcript, Confidence: alt.Confidence}
}
