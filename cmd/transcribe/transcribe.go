package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-stt-whisper/internal/audio"
	"github.com/nupi-ai/plugin-stt-whisper/internal/whisper"
)

// session is the part of *whisper.Session used for batch transcription.
type session interface {
	Full(ctx context.Context, params whisper.Params, samples []float32) error
	SegmentCount() int
	SegmentText(segment int) (string, error)
	SegmentSpan(segment int) (start, end time.Duration)
	SpeakerTurnNext(segment int) bool
}

// Segment is one transcribed span of a file.
type Segment struct {
	Start       time.Duration `json:"start"`
	End         time.Duration `json:"end"`
	Text        string        `json:"text"`
	SpeakerTurn bool          `json:"speaker_turn,omitempty"`
}

// FileResult is the transcript of one input file.
type FileResult struct {
	Path     string    `json:"path"`
	Duration string    `json:"duration"`
	Segments []Segment `json:"segments"`
	Error    string    `json:"error,omitempty"`
}

// Text joins the segment texts.
func (r FileResult) Text() string {
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func loadSamples(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pcm, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return audio.Load16k(pcm)
}

// transcribeSamples feeds samples through s in windows of at most window,
// so the running prompt links consecutive windows. Segment spans are made
// absolute within the file.
func transcribeSamples(ctx context.Context, s session, params whisper.Params, samples []float32, window time.Duration) ([]Segment, error) {
	step := int(window.Seconds() * audio.SampleRate)
	if step <= 0 {
		step = len(samples)
	}

	var segments []Segment
	for offset := 0; offset < len(samples); offset += step {
		end := min(offset+step, len(samples))
		if err := s.Full(ctx, params, samples[offset:end]); err != nil {
			return segments, fmt.Errorf("window at %s: %w", sampleTime(offset), err)
		}
		base := sampleTime(offset)
		for i := range s.SegmentCount() {
			text, err := s.SegmentText(i)
			if err != nil {
				return segments, err
			}
			t0, t1 := s.SegmentSpan(i)
			segments = append(segments, Segment{
				Start:       base + t0,
				End:         base + t1,
				Text:        strings.TrimSpace(text),
				SpeakerTurn: s.SpeakerTurnNext(i),
			})
		}
	}
	return segments, nil
}

func sampleTime(n int) time.Duration {
	return time.Duration(n) * time.Second / audio.SampleRate
}

func formatTimestamp(d time.Duration) string {
	d = d.Round(10 * time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}
