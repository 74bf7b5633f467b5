package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubFactoryStreamsAreIndependent(t *testing.T) {
	factory := NewStubFactory(nil, "tiny")
	require.False(t, factory.Native())
	t.Cleanup(func() { require.NoError(t, factory.Close()) })

	first, err := factory.NewStream(context.Background())
	require.NoError(t, err)
	second, err := factory.NewStream(context.Background())
	require.NoError(t, err)

	results, err := first.TranscribeSegment(context.Background(), make([]byte, 8), Options{Sequence: 1})
	require.NoError(t, err)
	require.Equal(t, "[stub:tiny] received 8 bytes", results[0].Text)

	results, err = first.TranscribeSegment(context.Background(), nil, Options{Sequence: 2})
	require.NoError(t, err)
	require.Empty(t, results)

	flushed, err := first.Flush(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, []Result{{Text: "[stub:tiny] total bytes 8", Confidence: 1, Final: true}}, flushed)

	flushed, err = second.Flush(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, "[stub] stream closed", flushed[0].Text)
}

func BenchmarkStubEngineTranscribeSegment(b *testing.B) {
	eng := NewStubEngine(nil, "base")
	segment := make([]byte, 1600)
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		if _, err := eng.TranscribeSegment(ctx, segment, Options{Sequence: uint64(i)}); err != nil {
			b.Fatalf("TranscribeSegment: %v", err)
		}
	}
}
