package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

var errMalformedDigest = errors.New("malformed digest")

var b64 = base64.RawStdEncoding

// $pbkdf2-sha256$i=<iterations>$<key>
type pbkdf2Params struct {
	iterations int
	keyLen     int
}

func (p pbkdf2Params) derive(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, p.iterations, p.keyLen, sha256.New)
}

func (p pbkdf2Params) encode(password, salt []byte) string {
	return fmt.Sprintf("$%s$i=%d$%s", SchemePBKDF2, p.iterations, b64.EncodeToString(p.derive(password, salt)))
}

func parsePBKDF2(digest string) (pbkdf2Params, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 4 || parts[1] != string(SchemePBKDF2) {
		return pbkdf2Params{}, nil, errMalformedDigest
	}

	var p pbkdf2Params
	if _, err := fmt.Sscanf(parts[2], "i=%d", &p.iterations); err != nil || p.iterations <= 0 {
		return pbkdf2Params{}, nil, errMalformedDigest
	}

	key, err := b64.DecodeString(parts[3])
	if err != nil || len(key) == 0 {
		return pbkdf2Params{}, nil, errMalformedDigest
	}
	p.keyLen = len(key)

	return p, key, nil
}

// $argon2id$v=19$m=<KiB>,t=<time>,p=<threads>$<key>
type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
}

func (p argon2Params) derive(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, p.time, p.memory, p.threads, p.keyLen)
}

func (p argon2Params) encode(password, salt []byte) string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s",
		SchemeArgon2id, argon2.Version, p.memory, p.time, p.threads,
		b64.EncodeToString(p.derive(password, salt)))
}

func parseArgon2(digest string) (argon2Params, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 5 || parts[1] != string(SchemeArgon2id) {
		return argon2Params{}, nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Params{}, nil, errMalformedDigest
	}

	var p argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argon2Params{}, nil, errMalformedDigest
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return argon2Params{}, nil, errMalformedDigest
	}

	key, err := b64.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return argon2Params{}, nil, errMalformedDigest
	}
	p.keyLen = uint32(len(key))

	return p, key, nil
}

func verifyBcrypt(password []byte, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), password) == nil
}
