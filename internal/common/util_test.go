package common

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	require.NoError(t, err)
	assert.Len(t, s, n*2)

	_, err = hex.DecodeString(s)
	assert.NoError(t, err)
}

func TestMakeRandURLToken_URLSafe(t *testing.T) {
	s, err := MakeRandURLToken(12)
	require.NoError(t, err)
	assert.Len(t, s, 16)
	assert.NotContains(t, s, "+")
	assert.NotContains(t, s, "/")
	assert.NotContains(t, s, "=")

	raw, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	assert.Len(t, raw, 12)
}

func TestMakeRandURLToken_Distinct(t *testing.T) {
	a, err := MakeRandURLToken(12)
	require.NoError(t, err)
	b, err := MakeRandURLToken(12)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRandomBytes_ZeroSize(t *testing.T) {
	b, err := RandomBytes(0)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte("secret")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, 6), buf)

	WipeByteArray(nil)
}
