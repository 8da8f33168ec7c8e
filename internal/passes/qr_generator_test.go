package passes

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNGIsDecodableImage(t *testing.T) {
	gen, err := NewQRGenerator("test-secret-key")
	require.NoError(t, err)

	img, err := gen.PNG(Pass{EventID: "evt-1", UserID: "user-1", IssuedAt: time.Now()})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
}

func TestTokenRoundTrip(t *testing.T) {
	gen, err := NewQRGenerator("test-secret-key")
	require.NoError(t, err)

	issued := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	token, err := gen.Token(Pass{EventID: "evt-1", UserID: "user-1", IssuedAt: issued})
	require.NoError(t, err)

	p, err := gen.Open(token)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", p.EventID)
	assert.Equal(t, "user-1", p.UserID)
	assert.True(t, issued.Equal(p.IssuedAt))
}

func TestTokensAreNotDeterministic(t *testing.T) {
	gen, err := NewQRGenerator("test-secret-key")
	require.NoError(t, err)

	p := Pass{EventID: "evt-1", UserID: "user-1"}
	a, err := gen.Token(p)
	require.NoError(t, err)
	b, err := gen.Token(p)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsForeignAndTamperedTokens(t *testing.T) {
	gen, err := NewQRGenerator("test-secret-key")
	require.NoError(t, err)
	other, err := NewQRGenerator("another-secret")
	require.NoError(t, err)

	token, err := other.Token(Pass{EventID: "evt-1", UserID: "user-1"})
	require.NoError(t, err)

	_, err = gen.Open(token)
	assert.ErrorIs(t, err, ErrInvalidPass)

	_, err = gen.Open("not base64 !!")
	assert.ErrorIs(t, err, ErrInvalidPass)

	_, err = gen.Open("")
	assert.ErrorIs(t, err, ErrInvalidPass)
}
