// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package holdmusic provides the synthetic sender a Call substitutes in
// when a lone human participant's mix is silent (§4.4). It mirrors the
// original's `include_bytes!` + lazy decode: the asset's PCM is decoded
// once, on first use, and a wrapping position cursor is advanced every
// tick it is consulted — never reset.
package holdmusic

import (
	"sync"

	"github.com/confmesh/core/internal/audio"
	"github.com/confmesh/core/internal/audio/codec"
	"github.com/confmesh/core/internal/testaudio"
)

var (
	once    sync.Once
	samples []int16
)

// decode lazily materializes the embedded hold-music PCM. The asset
// itself is generated once via internal/testaudio's music-bed generator
// (a chord-progression synthesizer, the same generator §9's design note
// calls for as a sibling module), then round-tripped frame-by-frame
// through an Opus encode/decode pass — the asset is handled through the
// same compressed-codec path a real Opus-encoded embedded asset would
// take, rather than being kept as raw PCM.
func decode() []int16 {
	once.Do(func() {
		gen := testaudio.New(audio.SampleRate)
		raw := gen.GenerateMusic(audio.SampleRate * 30) // 30s loop
		samples = opusRoundTrip(raw)
	})
	return samples
}

// opusRoundTrip encodes raw in fixed audio.FrameSize chunks and decodes
// each packet straight back, falling back to the original chunk for any
// frame that fails to encode or decode (the generator's own output is
// well-formed PCM, so a failure here would be a programming error, not
// a runtime one).
func opusRoundTrip(raw []int16) []int16 {
	enc, err := codec.NewOpusEncoder(audio.SampleRate)
	if err != nil {
		return raw
	}
	dec, err := codec.NewOpusDecoder(audio.SampleRate)
	if err != nil {
		return raw
	}

	out := make([]int16, 0, len(raw))
	for i := 0; i+audio.FrameSize <= len(raw); i += audio.FrameSize {
		frame := raw[i : i+audio.FrameSize]
		packet, err := enc.EncodePacket(frame)
		if err != nil {
			out = append(out, frame...)
			continue
		}
		pcm, err := dec.DecodePacket(packet)
		if err != nil {
			out = append(out, frame...)
			continue
		}
		out = append(out, pcm...)
	}
	return out
}

// Source hands out one frame of hold music per call, advancing a shared,
// wrapping position cursor that never resets (§4.4).
type Source struct {
	pos int
}

// New builds a Source backed by the lazily-decoded asset.
func New() *Source {
	decode() // force decode on first Source, not first Next
	return &Source{}
}

// Next returns exactly one frame_size frame, wrapping the cursor around
// the asset length.
func (s *Source) Next(frameSize int) []int16 {
	asset := decode()
	if len(asset) == 0 {
		return make([]int16, frameSize)
	}
	out := make([]int16, frameSize)
	for i := 0; i < frameSize; i++ {
		out[i] = asset[s.pos]
		s.pos = (s.pos + 1) % len(asset)
	}
	return out
}
