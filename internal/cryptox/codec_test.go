package cryptox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newPBKDF2Codec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(DefaultParams())
	require.NoError(t, err)
	return c
}

func newArgonCodec(t *testing.T) *Codec {
	t.Helper()
	p := DefaultParams()
	p.Scheme = SchemeArgon2id
	p.Argon2MemoryKiB = 1024
	c, err := NewCodec(p)
	require.NoError(t, err)
	return c
}

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	for name, c := range map[string]*Codec{"pbkdf2": newPBKDF2Codec(t), "argon2id": newArgonCodec(t)} {
		t.Run(name, func(t *testing.T) {
			cred, err := c.Hash("correct horse")
			require.NoError(t, err)

			assert.True(t, c.Verify("correct horse", cred))
			assert.False(t, c.Verify("correct horse ", cred))
			assert.False(t, c.Verify("", cred))
			assert.NotContains(t, cred.Digest, "correct horse")
		})
	}
}

func TestHash_FreshSaltEachTime(t *testing.T) {
	t.Parallel()
	c := newPBKDF2Codec(t)

	a, err := c.Hash("admin")
	require.NoError(t, err)
	b, err := c.Hash("admin")
	require.NoError(t, err)

	assert.Len(t, a.Salt, 32)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestHash_EncodesParameters(t *testing.T) {
	t.Parallel()

	cred, err := newPBKDF2Codec(t).Hash("x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred.Digest, "$pbkdf2-sha256$i=100000$"), cred.Digest)

	cred, err = newArgonCodec(t).Hash("x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred.Digest, "$argon2id$v=19$m=1024,t=1,p=4$"), cred.Digest)
}

func TestVerify_WrongSaltFails(t *testing.T) {
	t.Parallel()
	c := newPBKDF2Codec(t)

	cred, err := c.Hash("secret")
	require.NoError(t, err)

	other := make([]byte, len(cred.Salt))
	copy(other, cred.Salt)
	other[0] ^= 0xff

	assert.False(t, c.Verify("secret", Credential{Digest: cred.Digest, Salt: other}))
}

func TestVerify_MalformedNeverPanics(t *testing.T) {
	t.Parallel()
	c := newPBKDF2Codec(t)
	salt := make([]byte, 32)

	cases := []Credential{
		{},
		{Digest: "", Salt: salt},
		{Digest: "plaintext", Salt: salt},
		{Digest: "$pbkdf2-sha256$i=100000$", Salt: salt},
		{Digest: "$pbkdf2-sha256$i=abc$AAAA", Salt: salt},
		{Digest: "$pbkdf2-sha256$i=100000$!!notbase64", Salt: salt},
		{Digest: "$pbkdf2-sha256$i=100000$" + base64.RawStdEncoding.EncodeToString([]byte("k")), Salt: nil},
		{Digest: "$argon2id$v=18$m=1,t=1,p=1$AAAA", Salt: salt},
		{Digest: "$argon2id$v=19$m=0,t=1,p=1$AAAA", Salt: salt},
		{Digest: "$argon2id$v=19$garbage$AAAA", Salt: salt},
		{Digest: "$2a$10$tooshort", Salt: nil},
	}

	for _, cred := range cases {
		assert.NotPanics(t, func() {
			assert.False(t, c.Verify("anything", cred), "digest %q", cred.Digest)
		})
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	t.Parallel()
	c := newPBKDF2Codec(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.MinCost)
	require.NoError(t, err)
	cred := Credential{Digest: string(legacy)}

	assert.True(t, c.Verify("admin", cred))
	assert.False(t, c.Verify("Admin", cred))
	assert.True(t, c.NeedsRehash(cred))
}

func TestNeedsRehash(t *testing.T) {
	t.Parallel()

	strong := DefaultParams()
	strong.PBKDF2Iterations = 200_000
	strongCodec, err := NewCodec(strong)
	require.NoError(t, err)

	weak := newPBKDF2Codec(t)
	cred, err := weak.Hash("pw")
	require.NoError(t, err)

	assert.False(t, weak.NeedsRehash(cred))
	assert.True(t, strongCodec.NeedsRehash(cred))
	assert.True(t, newArgonCodec(t).NeedsRehash(cred))
	assert.True(t, weak.NeedsRehash(Credential{Digest: "junk"}))
}

func TestNewCodec_RejectsWeakParams(t *testing.T) {
	t.Parallel()

	p := DefaultParams()
	p.PBKDF2Iterations = 1000
	_, err := NewCodec(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.SaltLength = 8
	_, err = NewCodec(p)
	assert.Error(t, err)

	p = DefaultParams()
	p.Scheme = SchemeBcrypt
	_, err = NewCodec(p)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)

	p = DefaultParams()
	p.Scheme = SchemeArgon2id
	p.Argon2Threads = 0
	_, err = NewCodec(p)
	assert.Error(t, err)
}

func TestDummy_IsStableAndRejectsGuesses(t *testing.T) {
	t.Parallel()
	c := newPBKDF2Codec(t)

	d := c.Dummy()
	require.False(t, d.IsZero())
	assert.Equal(t, d, c.Dummy())
	assert.False(t, c.Verify("admin", d))
}

func TestGenerateTemporaryPassword(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pw, err := GenerateTemporaryPassword()
		require.NoError(t, err)
		assert.Len(t, pw, 16)

		raw, err := base64.RawURLEncoding.DecodeString(pw)
		require.NoError(t, err)
		assert.Len(t, raw, TemporaryTokenBytes)

		assert.False(t, seen[pw])
		seen[pw] = true
	}
}
