package secure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBufferRoundTrip(t *testing.T) {
	buf := NewTokenBufferFromString("ghp_roundtrip")

	locked, err := buf.Open()
	require.NoError(t, err)
	defer locked.Destroy()

	assert.Equal(t, "ghp_roundtrip", locked.String())
}

func TestTokenBufferOpenTwice(t *testing.T) {
	buf := NewTokenBuffer([]byte("twice"))

	first, err := buf.Open()
	require.NoError(t, err)
	got := first.String()
	first.Destroy()

	second, err := buf.Open()
	require.NoError(t, err)
	defer second.Destroy()

	assert.Equal(t, got, second.String())
}

func TestTokenBufferDestroyIsIdempotent(t *testing.T) {
	buf := NewTokenBufferFromString("gone")
	buf.Destroy()
	buf.Destroy()

	_, err := buf.Open()
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestTokenBufferEmptySecret(t *testing.T) {
	for _, buf := range []*TokenBuffer{
		NewTokenBuffer(nil),
		NewTokenBufferFromString(""),
	} {
		_, err := buf.Open()
		assert.ErrorIs(t, err, ErrNoSecret)
		buf.Destroy()
	}
}
