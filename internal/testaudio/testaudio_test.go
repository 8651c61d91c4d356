// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package testaudio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confmesh/core/internal/audio"
)

func TestGenerateFormantSpeech_HasSignificantEnergy(t *testing.T) {
	g := New(audio.SampleRate)
	speech := g.GenerateFormantSpeech(audio.FrameSize, VowelA)
	require.Len(t, speech, audio.FrameSize)
	require.Greater(t, audio.CalculateRMS(speech), 100.0)
}

func TestGenerateSentence_IsSubstantial(t *testing.T) {
	g := New(audio.SampleRate)
	sentence := g.GenerateSentence(3)
	require.Greater(t, len(sentence), 1000)
}

func TestParseNoiseType_RoundTripsLabel(t *testing.T) {
	for _, name := range []string{"crowd", "factory", "gunfire", "explosion", "siren", "music", "wind", "rain", "tv_dialogue"} {
		nt, err := ParseNoiseType(name, nil)
		require.NoError(t, err)
		require.NotEmpty(t, nt.Label())
	}

	_, err := ParseNoiseType("not-a-real-noise", nil)
	require.Error(t, err)
}

func TestGenerateNoise_ProducesRequestedLength(t *testing.T) {
	g := New(audio.SampleRate)
	nt, err := ParseNoiseType("crowd", map[string]interface{}{"voice_count": float64(3)})
	require.NoError(t, err)
	out := g.GenerateNoise(nt, audio.FrameSize*4)
	require.Len(t, out, audio.FrameSize*4)
}

func TestMixAudioWithSNR_ZeroNoiseReturnsSignalUnchanged(t *testing.T) {
	g := New(audio.SampleRate)
	signal := g.GenerateFormantSpeech(audio.FrameSize, VowelA)
	silence := make([]int16, audio.FrameSize)
	out := MixAudioWithSNR(signal, silence, 10)
	require.Equal(t, signal, out)
}
