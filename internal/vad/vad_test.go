// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package vad

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/logging"
)

func loudFrame(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = 16000
		} else {
			s[i] = -16000
		}
	}
	return s
}

func silenceFrame(n int) []int16 {
	return make([]int16, n)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EnergyDebounceFrames = 2
	cfg.HangoverSilence = 40 * time.Millisecond
	cfg.HardCap = 2 * time.Second
	return cfg
}

func TestDetector_EmitsUtteranceAfterHangover(t *testing.T) {
	cfg := testConfig()
	d := New(cfg, logging.NewNop(), NewStubStage2(1000))

	for i := 0; i < 3; i++ {
		u, err := d.Process(loudFrame(audio.FrameSize))
		require.NoError(t, err)
		require.Nil(t, u)
	}

	var got *Utterance
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		u, err := d.Process(silenceFrame(audio.FrameSize))
		require.NoError(t, err)
		if u != nil {
			got = u
			break
		}
	}

	require.NotNil(t, got, "expected an utterance to be emitted after hang-over silence")
	require.NotEmpty(t, got.Samples)
}

func TestDetector_HardCapForcesEmission(t *testing.T) {
	cfg := testConfig()
	cfg.HardCap = 100 * time.Millisecond
	d := New(cfg, logging.NewNop(), NewStubStage2(1000))

	for i := 0; i < 2; i++ {
		_, err := d.Process(loudFrame(audio.FrameSize))
		require.NoError(t, err)
	}

	var got *Utterance
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && got == nil {
		u, err := d.Process(loudFrame(audio.FrameSize))
		require.NoError(t, err)
		got = u
	}
	require.NotNil(t, got, "hard cap should force utterance emission on a continuously-open region")
}

func TestDetector_ShortSpuriousCrossingIgnored(t *testing.T) {
	cfg := testConfig()
	d := New(cfg, logging.NewNop(), NewStubStage2(1000))

	// A single loud frame does not reach EnergyDebounceFrames=2.
	u, err := d.Process(loudFrame(audio.FrameSize))
	require.NoError(t, err)
	require.Nil(t, u)

	for i := 0; i < 5; i++ {
		u, err := d.Process(silenceFrame(audio.FrameSize))
		require.NoError(t, err)
		require.Nil(t, u, "no region was ever confirmed open, nothing should emit")
	}
}

func TestNew_DegradesToPassthroughOnStage2Failure(t *testing.T) {
	d := New(testConfig(), logging.NewNop(), NewFailingStage2(errors.New("model missing")))
	require.True(t, d.Passthrough())

	u, err := d.Process(loudFrame(audio.FrameSize))
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestDetector_ResetDiscardsOpenRegion(t *testing.T) {
	cfg := testConfig()
	d := New(cfg, logging.NewNop(), NewStubStage2(1000))

	for i := 0; i < 3; i++ {
		_, err := d.Process(loudFrame(audio.FrameSize))
		require.NoError(t, err)
	}
	d.Reset()

	var got *Utterance
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		u, err := d.Process(silenceFrame(audio.FrameSize))
		require.NoError(t, err)
		if u != nil {
			got = u
			break
		}
	}
	require.Nil(t, got, "reset region must not later be emitted as an utterance")
}
