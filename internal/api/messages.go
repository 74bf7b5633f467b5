// Package api declares the wire contract of the speech-to-text adapter: the
// streaming request and response messages and the gRPC service that carries
// them. Messages travel as JSON through the codec registered in codec.go.
package api

// AudioFormat describes the PCM payload carried by Segment.Audio.
type AudioFormat struct {
	Encoding   string `json:"encoding,omitempty"`
	SampleRate uint32 `json:"sample_rate,omitempty"`
	Channels   uint32 `json:"channels,omitempty"`
	// FrameDurationMs is advisory.
	FrameDurationMs uint32 `json:"frame_duration_ms,omitempty"`
}

func (f *AudioFormat) GetEncoding() string {
	if f == nil {
		return ""
	}
	return f.Encoding
}

func (f *AudioFormat) GetSampleRate() uint32 {
	if f == nil {
		return 0
	}
	return f.SampleRate
}

func (f *AudioFormat) GetChannels() uint32 {
	if f == nil {
		return 0
	}
	return f.Channels
}

// Segment is one chunk of audio in a stream.
type Segment struct {
	Sequence uint64 `json:"sequence,omitempty"`
	Audio    []byte `json:"audio,omitempty"`
	// Last marks the final segment of the stream.
	Last bool `json:"last,omitempty"`
}

func (s *Segment) GetSequence() uint64 {
	if s == nil {
		return 0
	}
	return s.Sequence
}

func (s *Segment) GetAudio() []byte {
	if s == nil {
		return nil
	}
	return s.Audio
}

func (s *Segment) GetLast() bool {
	if s == nil {
		return false
	}
	return s.Last
}

// StreamTranscriptionRequest is sent by the client. The first request of a
// stream usually carries only identifiers, format and metadata.
type StreamTranscriptionRequest struct {
	SessionId string            `json:"session_id,omitempty"`
	StreamId  string            `json:"stream_id,omitempty"`
	Format    *AudioFormat      `json:"format,omitempty"`
	Segment   *Segment          `json:"segment,omitempty"`
	Flush     bool              `json:"flush,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (r *StreamTranscriptionRequest) GetSessionId() string {
	if r == nil {
		return ""
	}
	return r.SessionId
}

func (r *StreamTranscriptionRequest) GetStreamId() string {
	if r == nil {
		return ""
	}
	return r.StreamId
}

func (r *StreamTranscriptionRequest) GetFormat() *AudioFormat {
	if r == nil {
		return nil
	}
	return r.Format
}

func (r *StreamTranscriptionRequest) GetSegment() *Segment {
	if r == nil {
		return nil
	}
	return r.Segment
}

func (r *StreamTranscriptionRequest) GetFlush() bool {
	if r == nil {
		return false
	}
	return r.Flush
}

func (r *StreamTranscriptionRequest) GetMetadata() map[string]string {
	if r == nil {
		return nil
	}
	return r.Metadata
}

// Transcript is streamed back to the client.
type Transcript struct {
	Sequence   uint64            `json:"sequence,omitempty"`
	Text       string            `json:"text,omitempty"`
	Confidence float32           `json:"confidence,omitempty"`
	Final      bool              `json:"final,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (t *Transcript) GetSequence() uint64 {
	if t == nil {
		return 0
	}
	return t.Sequence
}

func (t *Transcript) GetText() string {
	if t == nil {
		return ""
	}
	return t.Text
}

func (t *Transcript) GetConfidence() float32 {
	if t == nil {
		return 0
	}
	return t.Confidence
}

func (t *Transcript) GetFinal() bool {
	if t == nil {
		return false
	}
	return t.Final
}

func (t *Transcript) GetMetadata() map[string]string {
	if t == nil {
		return nil
	}
	return t.Metadata
}
