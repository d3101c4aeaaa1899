package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidHash = errors.New("invalid password hash")

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 64 * 1024, Iterations: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// PasswordHasher derives argon2id keys from password+pepper with a per-user
// salt stored next to the hash.
type PasswordHasher struct {
	pepper string
	params Argon2Params
}

func NewPasswordHasher(pepper string, params Argon2Params) *PasswordHasher {
	if params.KeyLength == 0 {
		params = DefaultArgon2Params()
	}
	return &PasswordHasher{pepper: pepper, params: params}
}

func (h *PasswordHasher) Hash(password string) (hash string, salt string, err error) {
	raw := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	salt = hex.EncodeToString(raw)
	key := argon2.IDKey([]byte(password+h.pepper), raw, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	hash = fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s", argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(key))
	return hash, salt, nil
}

func (h *PasswordHasher) Verify(password, encoded, salt string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrInvalidHash
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return false, ErrInvalidHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHash
	}
	rawSalt, err := hex.DecodeString(salt)
	if err != nil {
		return false, ErrInvalidHash
	}
	got := argon2.IDKey([]byte(password+h.pepper), rawSalt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}
