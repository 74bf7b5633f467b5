package whisper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextHandleRejectsNil(t *testing.T) {
	fake := newFakeLibrary()
	h, err := newContextHandle(fake, nil)
	require.Nil(t, h)
	require.ErrorIs(t, err, ErrInitialization)
	require.Zero(t, fake.modelFrees.Load())
}

func TestStateHandleRejectsNil(t *testing.T) {
	fake := newFakeLibrary()
	h, err := newStateHandle(fake, nil)
	require.Nil(t, h)
	require.ErrorIs(t, err, ErrSessionInitialization)
	require.Zero(t, fake.stateFrees.Load())
}

func TestHandlesReleaseOnce(t *testing.T) {
	fake := installFake(t, newFakeLibrary())

	model, err := newContextHandle(fake, fake.initModel("m.bin", false))
	require.NoError(t, err)
	state, err := newStateHandle(fake, fake.initState(model.ptr()))
	require.NoError(t, err)
	require.NotNil(t, state.ptr())

	state.release()
	state.release()
	require.Nil(t, state.ptr())
	require.EqualValues(t, 1, fake.stateFrees.Load())

	model.release()
	model.release()
	require.Nil(t, model.ptr())
	require.EqualValues(t, 1, fake.modelFrees.Load())
}
