package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/secret"
)

// PasswordConfig carries the pepper and the argon2id cost parameters.
type PasswordConfig struct {
	Pepper      secret.String
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c PasswordConfig) withDefaults() PasswordConfig {
	if c.Memory == 0 {
		c.Memory = 12288
	}
	if c.Iterations == 0 {
		c.Iterations = 3
	}
	if c.Parallelism == 0 {
		c.Parallelism = 1
	}
	if c.SaltLength == 0 {
		c.SaltLength = 16
	}
	if c.KeyLength == 0 {
		c.KeyLength = 32
	}
	return c
}

// ErrMalformedHash marks a stored hash that cannot be parsed. Unlike a
// failed verification it is a data-integrity error, not a negative result.
var ErrMalformedHash = errors.New("malformed PHC string")

// HashPassword peppers the raw password, generates a fresh salt and returns
// the argon2id PHC string embedding the parameters and salt.
func HashPassword(cfg PasswordConfig, raw secret.String) (domain.PHCString, error) {
	cfg = cfg.withDefaults()

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return domain.PHCString{}, fmt.Errorf("generate salt: %w", err)
	}

	peppered := sprinklePepper(cfg.Pepper.Expose(), raw.Expose())
	digest := argon2.IDKey([]byte(peppered), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, cfg.Memory, cfg.Iterations, cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return domain.NewPHCString(encoded)
}

// VerifyPassword re-derives the digest using the parameters embedded in the
// stored PHC string. A wrong password is (false, nil); only a hash that
// cannot be parsed is an error.
func VerifyPassword(pepper, raw secret.String, hash domain.PHCString) (bool, error) {
	memory, iterations, parallelism, salt, digest, err := parsePHC(hash.Expose())
	if err != nil {
		return false, err
	}

	peppered := sprinklePepper(pepper.Expose(), raw.Expose())
	derived := argon2.IDKey([]byte(peppered), salt, iterations, memory, parallelism, uint32(len(digest)))
	return subtle.ConstantTimeCompare(derived, digest) == 1, nil
}

func parsePHC(s string) (memory, iterations uint32, parallelism uint8, salt, digest []byte, err error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: %q", ErrMalformedHash, s)
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: parameters", ErrMalformedHash)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("%w: digest", ErrMalformedHash)
	}
	return memory, iterations, parallelism, salt, digest, nil
}

// sprinklePepper interleaves pepper and password one character at a time,
// pepper first; when one side runs out the other's tail is appended as-is.
func sprinklePepper(pepper, password string) string {
	pr := []rune(pepper)
	wr := []rune(password)

	var b strings.Builder
	b.Grow(len(pepper) + len(password))
	n := min(len(pr), len(wr))
	for i := 0; i < n; i++ {
		b.WriteRune(pr[i])
		b.WriteRune(wr[i])
	}
	b.WriteString(string(pr[n:]))
	b.WriteString(string(wr[n:]))
	return b.String()
}
