// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package audio holds the shared PCM16 constants, the Config type every
// component negotiates sample rate/frame size against, and small
// allocation-free sample helpers used on the mixer's hot path.
package audio

import "math"

const (
	// SampleRate is the internal working rate. Every ParticipantStream,
	// the mixer, and the VAD operate in this rate; wire audio is taken
	// as-is, with no resampling at the edge.
	SampleRate = 16000

	// FrameDurationMs is the tick period of the driver loop (§4.4).
	FrameDurationMs = 20

	// FrameSize is the number of samples per tick at SampleRate:
	// 16000 * 20 / 1000 = 320.
	FrameSize = SampleRate * FrameDurationMs / 1000

	// BytesPerSample is fixed: PCM16 little-endian, mono.
	BytesPerSample = 2

	// BitsPerSample mirrors BytesPerSample for WAV header construction.
	BitsPerSample = 16

	// Channels is always 1 (mono); the core is not a general media SDK.
	Channels = 1

	// PCMFormat is the WAVE_FORMAT_PCM tag used by the RIFF/WAVE encoder
	// and the hold-music decoder.
	PCMFormat = 1

	// RingCapacitySeconds sizes an Ai/Ambient ParticipantStream's ring
	// buffer (§3: "heap buffer sized ≈ 60s at 16kHz").
	RingCapacitySeconds = 60

	// RingCapacitySamples is the derived sample capacity of the ring.
	RingCapacitySamples = RingCapacitySeconds * SampleRate

	// AudioChannelCapacitySeconds sizes the Call's audio broadcast
	// channel in buffered frames-worth of seconds per sender (§3: "at
	// least ~40s of frames per sender").
	AudioChannelCapacitySeconds = 40

	// AudioChannelCapacity is the buffered-frame capacity of the audio
	// broadcast channel, derived from AudioChannelCapacitySeconds.
	AudioChannelCapacity = AudioChannelCapacitySeconds * 1000 / FrameDurationMs

	// TranscriptionChannelCapacity is "hundreds of events" per §3/§4.6.
	TranscriptionChannelCapacity = 500

	// VideoChannelCapacity mirrors the audio channel's generosity; video
	// frames are opaque and comparatively rare.
	VideoChannelCapacity = 256

	// ControlChannelCapacity is for participant_joined/left/error/stats.
	ControlChannelCapacity = 128
)

// Config describes a PCM16 mono audio format. It is the unit both wire
// adapters and the resampler negotiate against; Internal is this module's
// own working format, and NewConfig builds one for any other rate.
type Config struct {
	SampleRate int
	// FrameSamples is informational for adapters that batch on fixed
	// frame boundaries; the core's own tick cadence is FrameSize.
	FrameSamples int
}

// Internal is the core's own working format: 16kHz mono PCM16, 20ms frames.
var Internal = &Config{SampleRate: SampleRate, FrameSamples: FrameSize}

// NewConfig builds a Config for an arbitrary sample rate, deriving
// FrameSamples for a 20ms frame at that rate.
func NewConfig(sampleRate int) *Config {
	return &Config{SampleRate: sampleRate, FrameSamples: sampleRate * FrameDurationMs / 1000}
}

// ClampToInt16 saturates an i32 accumulator to the int16 range. Linear
// summation with clipping is the mixer's whole compression strategy (§4.2);
// no compressor, no AGC.
func ClampToInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// CalculateRMS returns the root-mean-square energy of a PCM16 buffer, used
// by the Stage-1 energy VAD gate and by test-audio assertions.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		f := float64(s)
		sumSq += f * f
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// IsSilence reports whether samples' RMS energy is at or below threshold.
func IsSilence(samples []int16, threshold float64) bool {
	return CalculateRMS(samples) <= threshold
}

// Int16ToFloat32 converts PCM16 samples to the [-1, 1] float32 range
// expected by neural VAD models (e.g. silero-vad-go).
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Float32ToInt16 is the inverse of Int16ToFloat32, used when synthesized
// TTS audio arrives as float32 PCM.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32768.0
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// BytesToInt16LE decodes a little-endian PCM16 byte slice into samples.
func BytesToInt16LE(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}

// Int16ToBytesLE encodes PCM16 samples into a little-endian byte slice.
func Int16ToBytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		u := uint16(s)
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}
