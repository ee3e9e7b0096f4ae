package crypto

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealerFromHex(hex.EncodeToString(key))
	require.NoError(t, err)
	return s
}

func TestSealRoundTrip(t *testing.T) {
	s := testSealer(t)
	plaintext := []byte(`{"username":"default","password":"hunter2"}`)

	sealed, err := s.Seal(plaintext, []byte("session-1"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hunter2")

	got, err := s.Open(sealed, []byte("session-1"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenWrongAssociatedData(t *testing.T) {
	s := testSealer(t)
	sealed, err := s.Seal([]byte("secret"), []byte("session-1"))
	require.NoError(t, err)

	_, err = s.Open(sealed, []byte("session-2"))
	assert.Error(t, err)
}

func TestOpenWrongKey(t *testing.T) {
	sealed, err := testSealer(t).Seal([]byte("secret"), nil)
	require.NoError(t, err)

	_, err = testSealer(t).Open(sealed, nil)
	assert.Error(t, err)
}

func TestOpenTooShort(t *testing.T) {
	_, err := testSealer(t).Open([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestSealIsRandomised(t *testing.T) {
	s := testSealer(t)
	a, _ := s.Seal([]byte("same"), nil)
	b, _ := s.Seal([]byte("same"), nil)
	assert.NotEqual(t, a, b)
}

func TestNewSealerFromHex(t *testing.T) {
	_, err := NewSealerFromHex("not-hex")
	assert.Error(t, err)

	_, err = NewSealerFromHex(strings.Repeat("ab", 16))
	assert.Error(t, err, "16-byte key must be rejected")

	s, err := NewSealerFromHex("")
	require.NoError(t, err)
	assert.NotNil(t, s)
}
