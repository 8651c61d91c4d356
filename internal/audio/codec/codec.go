// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package codec holds the non-PCM decode paths the core needs at its
// edges: the deprecated µ-law/A-law legacy audio control message (§6,
// design note: "kept for older clients") and Opus transcoding for
// non-PCM embedded assets such as a compressed hold-music WAV.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/zaf/g711"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/confmesh/core/internal/audio"
)

// DecodeUlaw decodes G.711 µ-law payload bytes into PCM16 little-endian.
func DecodeUlaw(payload []byte) ([]byte, error) {
	dec, err := g711.NewUlawDecoder(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("codec: ulaw decoder: %w", err)
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("codec: ulaw decode: %w", err)
	}
	return out, nil
}

// DecodeAlaw decodes G.711 A-law payload bytes into PCM16 little-endian.
func DecodeAlaw(payload []byte) ([]byte, error) {
	dec, err := g711.NewAlawDecoder(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("codec: alaw decoder: %w", err)
	}
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("codec: alaw decode: %w", err)
	}
	return out, nil
}

// OpusDecoder decodes a sequence of Opus packets at a fixed sample rate
// into PCM16 mono, used by internal/holdmusic when the embedded asset is
// Opus-compressed rather than raw PCM WAV.
type OpusDecoder struct {
	dec *opus.Decoder
}

// NewOpusDecoder builds an OpusDecoder for the given sample rate (must be
// one of Opus's supported rates: 8000, 12000, 16000, 24000, 48000).
func NewOpusDecoder(sampleRate int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// DecodePacket decodes one Opus packet into PCM16 samples, sized
// generously for up to a 120ms frame at the decoder's configured rate.
func (d *OpusDecoder) DecodePacket(packet []byte) ([]int16, error) {
	pcm := make([]int16, audio.SampleRate*120/1000*4)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: opus decode: %w", err)
	}
	return pcm[:n], nil
}

// OpusEncoder encodes PCM16 mono frames into Opus packets at a fixed
// sample rate, the counterpart internal/holdmusic uses to produce its
// embedded asset's Opus-compressed form at startup rather than shipping
// raw PCM.
type OpusEncoder struct {
	enc *opus.Encoder
}

// NewOpusEncoder builds an OpusEncoder for the given sample rate (must
// be one of Opus's supported rates: 8000, 12000, 16000, 24000, 48000).
func NewOpusEncoder(sampleRate int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// EncodePacket encodes one fixed-length PCM16 frame (2.5/5/10/20/40/60ms
// worth of samples at the encoder's configured rate) into one Opus
// packet.
func (e *OpusEncoder) EncodePacket(pcm []int16) ([]byte, error) {
	data := make([]byte, 4000)
	n, err := e.enc.Encode(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("codec: opus encode: %w", err)
	}
	return data[:n], nil
}
