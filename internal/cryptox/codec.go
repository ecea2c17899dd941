// Package cryptox implements the credential codec: salted slow hashing of
// passwords, constant-time verification and temporary password generation.
package cryptox

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
)

// Scheme identifies the key-derivation function recorded in a digest.
type Scheme string

const (
	SchemePBKDF2   Scheme = "pbkdf2-sha256"
	SchemeArgon2id Scheme = "argon2id"
	// SchemeBcrypt is accepted for verification only. Digests written by the
	// previous system are bcrypt strings that embed their own salt.
	SchemeBcrypt Scheme = "bcrypt"
)

const (
	MinPBKDF2Iterations = 100_000
	MinSaltLength       = 16
	TemporaryTokenBytes = 12
)

var ErrUnsupportedScheme = errors.New("unsupported password scheme")

// Credential is the stored form of a password: the encoded digest and the
// per-principal salt it was derived with.
type Credential struct {
	Digest string
	Salt   []byte
}

// IsZero reports whether no credential has been set.
func (c Credential) IsZero() bool {
	return c.Digest == "" && len(c.Salt) == 0
}

// Params configures new hashes. Stored digests carry their own parameters.
type Params struct {
	Scheme           Scheme
	SaltLength       int
	KeyLength        uint32
	PBKDF2Iterations int
	Argon2Time       uint32
	Argon2MemoryKiB  uint32
	Argon2Threads    uint8
}

func DefaultParams() Params {
	return Params{
		Scheme:           SchemePBKDF2,
		SaltLength:       32,
		KeyLength:        32,
		PBKDF2Iterations: MinPBKDF2Iterations,
		Argon2Time:       1,
		Argon2MemoryKiB:  64 * 1024,
		Argon2Threads:    4,
	}
}

type Codec struct {
	params Params

	dummyOnce sync.Once
	dummy     Credential
}

func NewCodec(p Params) (*Codec, error) {
	switch p.Scheme {
	case SchemePBKDF2:
		if p.PBKDF2Iterations < MinPBKDF2Iterations {
			return nil, fmt.Errorf("pbkdf2 iterations must be at least %d, got %d", MinPBKDF2Iterations, p.PBKDF2Iterations)
		}
	case SchemeArgon2id:
		if p.Argon2Time == 0 || p.Argon2MemoryKiB == 0 || p.Argon2Threads == 0 {
			return nil, errors.New("argon2id parameters must be positive")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, p.Scheme)
	}
	if p.SaltLength < MinSaltLength {
		return nil, fmt.Errorf("salt length must be at least %d bytes", MinSaltLength)
	}
	if p.KeyLength == 0 {
		return nil, errors.New("key length must be positive")
	}
	return &Codec{params: p}, nil
}

func (c *Codec) Scheme() Scheme { return c.params.Scheme }

// Hash derives a digest for plaintext with a fresh random salt.
func (c *Codec) Hash(plaintext string) (Credential, error) {
	salt, err := common.RandomBytes(c.params.SaltLength)
	if err != nil {
		return Credential{}, fmt.Errorf("salt: %w", err)
	}

	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)

	var digest string
	switch c.params.Scheme {
	case SchemeArgon2id:
		digest = argon2Params{
			time:    c.params.Argon2Time,
			memory:  c.params.Argon2MemoryKiB,
			threads: c.params.Argon2Threads,
			keyLen:  c.params.KeyLength,
		}.encode(pw, salt)
	default:
		digest = pbkdf2Params{
			iterations: c.params.PBKDF2Iterations,
			keyLen:     int(c.params.KeyLength),
		}.encode(pw, salt)
	}

	return Credential{Digest: digest, Salt: salt}, nil
}

// Verify recomputes the digest of plaintext with the stored salt and compares
// in constant time. Missing or malformed credentials verify as false.
func (c *Codec) Verify(plaintext string, cred Credential) bool {
	if cred.Digest == "" {
		return false
	}

	pw := []byte(plaintext)
	defer common.WipeByteArray(pw)

	switch schemeOf(cred.Digest) {
	case SchemePBKDF2:
		p, want, err := parsePBKDF2(cred.Digest)
		if err != nil || len(cred.Salt) < MinSaltLength {
			return false
		}
		return subtle.ConstantTimeCompare(p.derive(pw, cred.Salt), want) == 1
	case SchemeArgon2id:
		p, want, err := parseArgon2(cred.Digest)
		if err != nil || len(cred.Salt) < MinSaltLength {
			return false
		}
		return subtle.ConstantTimeCompare(p.derive(pw, cred.Salt), want) == 1
	case SchemeBcrypt:
		return verifyBcrypt(pw, cred.Digest)
	default:
		return false
	}
}

// NeedsRehash reports whether cred was produced with a different scheme or
// weaker parameters than the codec is configured for.
func (c *Codec) NeedsRehash(cred Credential) bool {
	scheme := schemeOf(cred.Digest)
	if scheme != c.params.Scheme {
		return true
	}
	switch scheme {
	case SchemePBKDF2:
		p, _, err := parsePBKDF2(cred.Digest)
		return err != nil || p.iterations < c.params.PBKDF2Iterations
	case SchemeArgon2id:
		p, _, err := parseArgon2(cred.Digest)
		return err != nil || p.time < c.params.Argon2Time || p.memory < c.params.Argon2MemoryKiB
	}
	return true
}

// Dummy returns a valid credential of a random password. Verifying against it
// costs the same as a real check, which hides whether a login exists.
func (c *Codec) Dummy() Credential {
	c.dummyOnce.Do(func() {
		pw, err := common.MakeRandHexString(16)
		if err == nil {
			c.dummy, _ = c.Hash(pw)
		}
	})
	return c.dummy
}

// GenerateTemporaryPassword returns a one-time password made of 12 random
// bytes in the URL-safe base64 alphabet.
func GenerateTemporaryPassword() (string, error) {
	return common.MakeRandURLToken(TemporaryTokenBytes)
}

func schemeOf(digest string) Scheme {
	switch {
	case strings.HasPrefix(digest, "$"+string(SchemePBKDF2)+"$"):
		return SchemePBKDF2
	case strings.HasPrefix(digest, "$"+string(SchemeArgon2id)+"$"):
		return SchemeArgon2id
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return SchemeBcrypt
	default:
		return ""
	}
}
