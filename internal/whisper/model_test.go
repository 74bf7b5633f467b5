package whisper

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadFake(t *testing.T, fake *fakeLibrary) *Model {
	t.Helper()
	installFake(t, fake)
	model, err := Load("ggml-test.bin", false, WithLogger(discardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = model.Close() })
	return model
}

func TestLoadUnavailable(t *testing.T) {
	fake := newFakeLibrary()
	fake.unavailable = true
	installFake(t, fake)

	model, err := Load("ggml-test.bin", false)
	require.Nil(t, model)
	require.ErrorIs(t, err, ErrInitialization)
	require.ErrorIs(t, err, ErrNativeUnavailable)
}

func TestLoadFailure(t *testing.T) {
	fake := newFakeLibrary()
	fake.failModel = true
	installFake(t, fake)

	model, err := Load("missing.bin", true)
	require.Nil(t, model)
	require.ErrorIs(t, err, ErrInitialization)
	require.Contains(t, err.Error(), "missing.bin")
	require.Zero(t, fake.modelFrees.Load())
}

func TestNewSessionFailureReleasesReference(t *testing.T) {
	fake := newFakeLibrary()
	model := loadFake(t, fake)
	fake.failState = true

	session, err := model.NewSession(context.Background())
	require.Nil(t, session)
	require.ErrorIs(t, err, ErrSessionInitialization)
	require.EqualValues(t, 1, model.References())
	require.Zero(t, fake.stateFrees.Load())
}

func TestNewSessionConcurrent(t *testing.T) {
	fake := newFakeLibrary()
	model := loadFake(t, fake)

	const n = 32
	sessions := make([]*Session, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			s, err := model.NewSession(context.Background())
			sessions[i] = s
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, n+1, model.References())
	require.Equal(t, n, fake.liveStates())

	seen := make(map[any]bool, n)
	for _, s := range sessions {
		seen[s.state.ptr()] = true
	}
	require.Len(t, seen, n)

	for i, s := range sessions {
		require.NoError(t, s.Full(context.Background(), DefaultGreedy(), []float32{float32(i) / 100}))
	}
	for _, s := range sessions {
		require.NoError(t, s.Close())
	}
	require.EqualValues(t, 1, model.References())
	require.Zero(t, fake.modelFrees.Load())
}

func TestModelFreedAfterLastSession(t *testing.T) {
	fake := newFakeLibrary()
	model := loadFake(t, fake)

	first, err := model.NewSession(context.Background())
	require.NoError(t, err)
	second, err := model.NewSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, model.Close())
	require.NoError(t, model.Close())
	require.Zero(t, fake.modelFrees.Load())

	_, err = model.NewSession(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, first.Full(context.Background(), DefaultGreedy(), []float32{0.1, 0.2}))
	require.NoError(t, first.Close())
	require.Zero(t, fake.modelFrees.Load())

	require.NoError(t, second.Full(context.Background(), DefaultGreedy(), []float32{0.3}))
	text, err := second.TokenText(0, 0)
	require.NoError(t, err)
	require.Equal(t, "<30>", text)

	require.NoError(t, second.Close())
	require.EqualValues(t, 1, fake.modelFrees.Load())
	require.EqualValues(t, 2, fake.stateFrees.Load())
	require.Zero(t, model.References())
}

func TestNewSessionCancelledContext(t *testing.T) {
	fake := newFakeLibrary()
	model := loadFake(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := model.NewSession(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, model.References())
}

func TestModelPath(t *testing.T) {
	model := loadFake(t, newFakeLibrary())
	require.Equal(t, "ggml-test.bin", model.Path())
}
