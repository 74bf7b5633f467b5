// Package audio converts PCM input into the mono 16 kHz float samples the
// whisper session layer consumes.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// SampleRate is the rate whisper models are trained on.
const SampleRate = 16000

var (
	// ErrInvalidWAV reports a stream that is not a RIFF/WAVE file.
	ErrInvalidWAV = errors.New("audio: invalid wav header")
	// ErrUnsupportedFormat reports a WAVE encoding other than 16-bit PCM.
	ErrUnsupportedFormat = errors.New("audio: unsupported wav format")
)

// PCM is decoded little-endian 16-bit audio.
type PCM struct {
	// Data holds mono samples as little-endian int16 bytes.
	Data       []byte
	SampleRate int
	// Channels is the channel count of the source file; Data is always mono.
	Channels int
}

// Samples returns the number of mono samples in Data.
func (p PCM) Samples() int { return len(p.Data) / 2 }

// Float32 converts Data to normalised float samples.
func (p PCM) Float32() []float32 { return PCM16ToFloat32(p.Data) }

// DecodeWAV reads a 16-bit PCM RIFF/WAVE stream. Multi-channel files keep the
// first channel only.
func DecodeWAV(r io.Reader) (PCM, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PCM{}, fmt.Errorf("audio: read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, ErrInvalidWAV
	}

	offset := 12
	var (
		sampleRate    int
		audioFormat   uint16
		channels      uint16
		bitsPerSample uint16
		audioData     []byte
		haveFormat    bool
	)

	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		chunkStart := offset + 8
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(data) || chunkEnd < chunkStart {
			return PCM{}, fmt.Errorf("%w: chunk %q out of range", ErrInvalidWAV, chunkID)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return PCM{}, fmt.Errorf("%w: fmt chunk too small", ErrInvalidWAV)
			}
			audioFormat = binary.LittleEndian.Uint16(data[chunkStart : chunkStart+2])
			channels = binary.LittleEndian.Uint16(data[chunkStart+2 : chunkStart+4])
			sampleRate = int(binary.LittleEndian.Uint32(data[chunkStart+4 : chunkStart+8]))
			bitsPerSample = binary.LittleEndian.Uint16(data[chunkStart+14 : chunkStart+16])
			haveFormat = true
		case "data":
			audioData = data[chunkStart:chunkEnd]
		}
		// Chunks are word aligned.
		offset = chunkEnd
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if !haveFormat {
		return PCM{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}
	if audioFormat != 1 {
		return PCM{}, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, audioFormat)
	}
	if bitsPerSample != 16 {
		return PCM{}, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bitsPerSample)
	}
	if channels == 0 || sampleRate <= 0 {
		return PCM{}, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, channels, sampleRate)
	}

	return PCM{
		Data:       firstChannel(audioData, int(channels)),
		SampleRate: sampleRate,
		Channels:   int(channels),
	}, nil
}

func firstChannel(data []byte, channels int) []byte {
	if channels == 1 {
		return data[:len(data)/2*2]
	}
	frame := 2 * channels
	out := make([]byte, 0, len(data)/frame*2)
	for i := 0; i+frame <= len(data); i += frame {
		out = append(out, data[i], data[i+1])
	}
	return out
}

// PCM16ToFloat32 converts little-endian int16 samples to floats in [-1, 1).
// A trailing odd byte is ignored.
func PCM16ToFloat32(buf []byte) []float32 {
	n := len(buf) / 2
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := range n {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(buf[2*i:]))) / 32768.0
	}
	return samples
}
