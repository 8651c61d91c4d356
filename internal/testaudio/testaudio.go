// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package testaudio generates synthetic audio for VAD/STT accuracy
// testing without fixtures (§9 design note). It is a direct port of
// the original's formant-based speech synthesizer and named noise
// profiles, standing in Go's math/rand for the original's rand crate.
// Random draws come from math/rand's global source, which this package
// does not seed, so noise and jitter differ from one run to the next;
// sample-exact output is not reproducible across runs.
package testaudio

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/confmesh/core/internal/audio"
)

// Vowel selects one of five formant structures for GenerateFormantSpeech.
type Vowel int

const (
	VowelA Vowel = iota // "ah" - open vowel
	VowelE              // "eh" - mid vowel
	VowelI              // "ee" - close front vowel
	VowelO              // "oh" - close back vowel
	VowelU              // "oo" - very close back vowel
)

// formants returns (F1, F2, F3) in Hz for v.
func (v Vowel) formants() (f1, f2, f3 float64) {
	switch v {
	case VowelA:
		return 730, 1090, 2440
	case VowelE:
		return 530, 1840, 2480
	case VowelI:
		return 270, 2290, 3010
	case VowelO:
		return 570, 840, 2410
	case VowelU:
		return 300, 870, 2240
	}
	return 730, 1090, 2440
}

// Generator produces synthetic PCM16 test signals at a fixed sample rate.
type Generator struct {
	sampleRate int
}

// New builds a Generator for sampleRate.
func New(sampleRate int) *Generator {
	return &Generator{sampleRate: sampleRate}
}

func envelope(i, n int) float64 {
	pos := float64(i) / float64(n)
	switch {
	case pos < 0.05:
		return pos / 0.05
	case pos > 0.95:
		return (1.0 - pos) / 0.05
	default:
		return 1.0
	}
}

func (g *Generator) formantFilter(signal, t, centerFreq float64) float64 {
	phase := 2 * math.Pi * centerFreq * t
	return signal * math.Sin(phase) * 0.3
}

// GenerateFormantSpeech synthesizes a vowel-like resonance with a 150Hz
// fundamental, 10 harmonics, shimmer/jitter, and an attack-sustain-release
// envelope — more realistic than a plain sine for VAD evaluation.
func (g *Generator) GenerateFormantSpeech(n int, vowel Vowel) []int16 {
	out := make([]int16, n)
	f1, f2, f3 := vowel.formants()
	const fundamental = 150.0

	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)

		var signal float64
		for h := 1; h <= 10; h++ {
			freq := fundamental * float64(h)
			amp := 1.0 / float64(h)
			signal += amp * math.Sin(2*math.Pi*freq*t)
		}

		formantEnv := g.formantFilter(signal, t, f1) + g.formantFilter(signal, t, f2) + g.formantFilter(signal, t, f3)
		variation := 1.0 + (rand.Float64()*0.1 - 0.05)
		env := envelope(i, n)

		sample := formantEnv * variation * env * 10000
		out[i] = clampSample(sample)
	}
	return out
}

// GeneratePlosive synthesizes a short broadband burst (p/t/k-like).
func (g *Generator) GeneratePlosive(n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		decay := math.Exp(-float64(i) / (float64(n) * 0.1))
		out[i] = clampSample((rand.Float64()*2 - 1) * 20000 * decay)
	}
	return out
}

// GenerateFricative synthesizes filtered noise around freqCenter
// (s/f/sh-like).
func (g *Generator) GenerateFricative(n int, freqCenter float64) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)
		noise := rand.Float64()*2 - 1
		shaped := noise * math.Sin(2*math.Pi*freqCenter*t)
		out[i] = clampSample(shaped * 8000 * envelope(i, n))
	}
	return out
}

// GenerateSentence concatenates wordCount formant-speech "words"
// separated by short silences, approximating a full utterance.
func (g *Generator) GenerateSentence(wordCount int) []int16 {
	var out []int16
	vowels := []Vowel{VowelA, VowelE, VowelI, VowelO, VowelU}
	wordLen := g.sampleRate / 3 // ~330ms per word
	gapLen := g.sampleRate / 10 // ~100ms gap

	for w := 0; w < wordCount; w++ {
		out = append(out, g.GenerateFormantSpeech(wordLen, vowels[w%len(vowels)])...)
		out = append(out, make([]int16, gapLen)...)
	}
	return out
}

// GenerateTVDialogue overlays a few simultaneous "speakers" with a music
// bed underneath, approximating background television audio.
func (g *Generator) GenerateTVDialogue(n int) []int16 {
	out := g.GenerateMusic(n)
	voices := g.GenerateCrowd(n, 2)
	for i := range out {
		out[i] = addSamples(out[i], int16(float64(voices[i])*0.6))
	}
	return out
}

// GenerateCrowd overlays voiceCount independent formant-speech voices at
// staggered pitches.
func (g *Generator) GenerateCrowd(n int, voiceCount int) []int16 {
	out := make([]int16, n)
	vowels := []Vowel{VowelA, VowelE, VowelI, VowelO, VowelU}
	for v := 0; v < voiceCount; v++ {
		voice := g.GenerateFormantSpeech(n, vowels[v%len(vowels)])
		scale := 1.0 / float64(voiceCount)
		for i := range out {
			out[i] = addSamples(out[i], int16(float64(voice[i])*scale))
		}
	}
	return out
}

// GenerateGunfire synthesizes sharp transient bursts at the given rate.
func (g *Generator) GenerateGunfire(n int, shotsPerSecond float64) []int16 {
	out := make([]int16, n)
	if shotsPerSecond <= 0 {
		return out
	}
	interval := int(float64(g.sampleRate) / shotsPerSecond)
	burstLen := g.sampleRate / 50 // 20ms burst
	for start := 0; start < n; start += interval {
		for i := 0; i < burstLen && start+i < n; i++ {
			decay := math.Exp(-float64(i) / (float64(burstLen) * 0.15))
			out[start+i] = clampSample((rand.Float64()*2 - 1) * 28000 * decay)
		}
	}
	return out
}

// GenerateExplosion synthesizes a low-frequency boom with debris scatter.
func (g *Generator) GenerateExplosion(n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)
		decay := math.Exp(-t * 3)
		boom := math.Sin(2*math.Pi*60*t) * 24000 * decay
		debris := (rand.Float64()*2 - 1) * 6000 * decay
		out[i] = clampSample(boom + debris)
	}
	return out
}

// GenerateSiren synthesizes an alternating two-tone emergency siren.
func (g *Generator) GenerateSiren(n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)
		lfo := math.Sin(2 * math.Pi * 0.5 * t)
		freq := 700.0 + 300*lfo
		out[i] = clampSample(math.Sin(2*math.Pi*freq*t) * 18000)
	}
	return out
}

// GenerateMusic synthesizes a simple C-Am-F-G chord-progression bed.
func (g *Generator) GenerateMusic(n int) []int16 {
	chords := [][]float64{
		{261.63, 329.63, 392.00}, // C
		{220.00, 261.63, 329.63}, // Am
		{174.61, 220.00, 261.63}, // F
		{196.00, 246.94, 293.66}, // G
	}
	out := make([]int16, n)
	chordLen := n / len(chords)
	if chordLen == 0 {
		chordLen = n
	}
	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)
		chord := chords[(i/max1(chordLen))%len(chords)]
		var signal float64
		for _, freq := range chord {
			signal += math.Sin(2*math.Pi*freq*t) / float64(len(chord))
		}
		out[i] = clampSample(signal * 12000)
	}
	return out
}

// GenerateWind synthesizes filtered noise with a slow LFO modulation.
func (g *Generator) GenerateWind(n int) []int16 {
	out := make([]int16, n)
	var prev float64
	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)
		noise := rand.Float64()*2 - 1
		filtered := prev*0.95 + noise*0.05 // simple low-pass
		prev = filtered
		lfo := 0.6 + 0.4*math.Sin(2*math.Pi*0.2*t)
		out[i] = clampSample(filtered * 14000 * lfo)
	}
	return out
}

// GenerateRain synthesizes continuous patter plus sparse raindrop
// impacts.
func (g *Generator) GenerateRain(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		patter := (rand.Float64()*2 - 1) * 4000
		impact := 0.0
		if rand.Float64() < 0.002 {
			impact = (rand.Float64()*2 - 1) * 12000
		}
		out[i] = clampSample(patter + impact)
	}
	return out
}

// GenerateFactoryFloor synthesizes machinery hum plus random clanks.
func (g *Generator) GenerateFactoryFloor(n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(g.sampleRate)
		hum := math.Sin(2*math.Pi*60*t)*4000 + math.Sin(2*math.Pi*120*t)*2000
		clank := 0.0
		if rand.Float64() < 0.0005 {
			clank = (rand.Float64()*2 - 1) * 20000
		}
		out[i] = clampSample(hum + clank)
	}
	return out
}

// NoiseType names one of the generator's background profiles,
// parameterized where the original carries a payload (Crowd's voice
// count, Gunfire's rate).
type NoiseType struct {
	Kind           string
	VoiceCount     int
	ShotsPerSecond float64
}

// Label returns the human-readable name used in benchmark output.
func (nt NoiseType) Label() string { return nt.Kind }

// ParseNoiseType parses a name (and optional parameters) into a
// NoiseType, for IPC/config-driven test harnesses.
func ParseNoiseType(name string, params map[string]interface{}) (NoiseType, error) {
	switch name {
	case "crowd":
		count := 5
		if v, ok := params["voice_count"]; ok {
			if f, ok := v.(float64); ok {
				count = int(f)
			}
		}
		return NoiseType{Kind: "crowd", VoiceCount: count}, nil
	case "factory", "factory_floor":
		return NoiseType{Kind: "factory"}, nil
	case "gunfire":
		sps := 3.0
		if v, ok := params["shots_per_second"]; ok {
			if f, ok := v.(float64); ok {
				sps = f
			}
		}
		return NoiseType{Kind: "gunfire", ShotsPerSecond: sps}, nil
	case "explosion":
		return NoiseType{Kind: "explosion"}, nil
	case "siren":
		return NoiseType{Kind: "siren"}, nil
	case "music":
		return NoiseType{Kind: "music"}, nil
	case "wind":
		return NoiseType{Kind: "wind"}, nil
	case "rain":
		return NoiseType{Kind: "rain"}, nil
	case "tv_dialogue", "tv":
		return NoiseType{Kind: "tv_dialogue"}, nil
	default:
		return NoiseType{}, fmt.Errorf("testaudio: unknown noise type %q (supported: crowd, factory, gunfire, explosion, siren, music, wind, rain, tv_dialogue)", name)
	}
}

// GenerateNoise dispatches to the generator matching nt.Kind.
func (g *Generator) GenerateNoise(nt NoiseType, n int) []int16 {
	switch nt.Kind {
	case "crowd":
		return g.GenerateCrowd(n, nt.VoiceCount)
	case "factory":
		return g.GenerateFactoryFloor(n)
	case "gunfire":
		return g.GenerateGunfire(n, nt.ShotsPerSecond)
	case "explosion":
		return g.GenerateExplosion(n)
	case "siren":
		return g.GenerateSiren(n)
	case "music":
		return g.GenerateMusic(n)
	case "wind":
		return g.GenerateWind(n)
	case "rain":
		return g.GenerateRain(n)
	case "tv_dialogue":
		return g.GenerateTVDialogue(n)
	default:
		return make([]int16, n)
	}
}

// MixAudioWithSNR mixes noise into signal at the requested signal-to-noise
// ratio in dB, scaling noise's RMS relative to signal's.
func MixAudioWithSNR(signal, noise []int16, snrDB float64) []int16 {
	signalRMS := audio.CalculateRMS(signal)
	noiseRMS := audio.CalculateRMS(noise)
	if noiseRMS == 0 {
		return append([]int16(nil), signal...)
	}

	targetNoiseRMS := signalRMS / math.Pow(10, snrDB/20)
	scale := targetNoiseRMS / noiseRMS

	n := len(signal)
	if len(noise) < n {
		n = len(noise)
	}
	out := make([]int16, len(signal))
	copy(out, signal)
	for i := 0; i < n; i++ {
		mixed := float64(signal[i]) + float64(noise[i])*scale
		out[i] = clampSample(mixed)
	}
	return out
}

func clampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func addSamples(a, b int16) int16 {
	return clampSample(float64(a) + float64(b))
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
