// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeWAV wraps PCM16 little-endian samples in a canonical RIFF/WAVE
// container (mono, PCM format 1). Used wherever a downstream adapter
// expects a WAV container rather than bare PCM (e.g. a pre-recorded STT
// REST endpoint).
func EncodeWAV(samples []int16, sampleRate int) []byte {
	pcmData := Int16ToBytesLE(samples)
	byteRate := sampleRate * Channels * BytesPerSample

	var buf bytes.Buffer
	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(PCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(Channels*BytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(BitsPerSample))

	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes()
}

// DecodeWAV parses a canonical RIFF/WAVE PCM16 container back into
// samples and its declared sample rate, walking chunks rather than
// assuming "fmt " immediately precedes "data" (some embedders pad chunks).
func DecodeWAV(data []byte) (samples []int16, sampleRate int, err error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE file")
	}

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, 0, fmt.Errorf("audio: truncated fmt chunk")
			}
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
		case "data":
			if body+chunkSize > len(data) {
				chunkSize = len(data) - body
			}
			samples = BytesToInt16LE(data[body : body+chunkSize])
		}

		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if sampleRate == 0 {
		return nil, 0, fmt.Errorf("audio: no fmt chunk found")
	}
	return samples, sampleRate, nil
}
