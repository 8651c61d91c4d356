// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package transcription implements TranscriptionGate (§4.6): a bounded
// concurrency limiter that keeps bursty STT completions from overrunning
// the system. It is grounded on the original `TRANSCRIPTION_SEMAPHORE`
// (MAX_CONCURRENT_TRANSCRIPTIONS=2, non-blocking try_acquire_owned) in
// the Rust original this core was distilled from.
package transcription

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/confmesh/core/internal/errs"
	"github.com/confmesh/core/internal/logging"
	"github.com/confmesh/core/internal/stt"
	"github.com/confmesh/core/internal/vad"
)

// DefaultMaxConcurrent matches the original's
// MAX_CONCURRENT_TRANSCRIPTIONS.
const DefaultMaxConcurrent = 2

// Event is one completed transcription, broadcast on the transcription
// channel (§6: type "transcription"). A failed job broadcasts no Event.
type Event struct {
	UserID      string
	DisplayName string
	Text        string
	Confidence  float64
	Language    string
}

// Gate rate-limits concurrent STT jobs. Each completed utterance attempts
// a non-blocking acquire; on failure the utterance is dropped with a
// warning rather than queued behind stale audio (§4.6).
type Gate struct {
	sem       *semaphore.Weighted
	transcribe stt.Transcriber
	logger    logging.Logger
}

// New builds a Gate with maxConcurrent permits. maxConcurrent <= 0 uses
// DefaultMaxConcurrent.
func New(maxConcurrent int64, transcriber stt.Transcriber, logger logging.Logger) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Gate{
		sem:        semaphore.NewWeighted(maxConcurrent),
		transcribe: transcriber,
		logger:     logger,
	}
}

// Submit attempts a non-blocking acquire and, on success, runs the STT
// job in a goroutine, delivering its result (or nothing, on failure) to
// onResult. On acquire failure it returns errs.ErrGateSaturated and the
// utterance is the caller's to drop-and-log.
func (g *Gate) Submit(ctx context.Context, userID, displayName string, u *vad.Utterance, onResult func(Event)) error {
	if !g.sem.TryAcquire(1) {
		g.logger.Warnw("transcription: gate saturated, dropping utterance",
			"user_id", userID)
		return errs.ErrGateSaturated
	}

	go func() {
		defer g.sem.Release(1)

		// No timeout is imposed here: an STT job holds a semaphore
		// permit, not a deadline (§5) — the Transcriber implementation
		// is responsible for bounding its own wall-clock time.
		result, err := g.transcribe.Transcribe(ctx, stt.Request{
			Samples:    u.Samples,
			SampleRate: u.SampleRate,
		})
		if err != nil {
			g.logger.Errorw("transcription: stt job failed",
				"user_id", userID, "error", err.Error())
			return
		}
		if result.Text == "" {
			return
		}
		onResult(Event{
			UserID:      userID,
			DisplayName: displayName,
			Text:        result.Text,
			Confidence:  result.Confidence,
			Language:    result.Language,
		})
	}()
	return nil
}
