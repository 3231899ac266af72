package auth

import (
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/secret"
)

// Small costs keep the argon2 tests fast; production values come from config.
var testPasswordConfig = PasswordConfig{
	Pepper:     secret.New("pepper"),
	Memory:     8,
	Iterations: 1,
}

func TestSprinklePepper(t *testing.T) {
	cases := []struct {
		pepper, password, want string
	}{
		{"abc", "XY", "aXbYc"},
		{"a", "XYZ", "aXYZ"},
		{"pepper", "abcde", "paebpcpdeer"},
		{"pepper", "abcdef", "paebpcpdeerf"},
		{"pepper", "abcdefg", "paebpcpdeerfg"},
		{"", "abc", "abc"},
		{"abc", "", "abc"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, sprinklePepper(c.pepper, c.password), "pepper=%q password=%q", c.pepper, c.password)
	}
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	raw := secret.New("Valid1@Pass")
	hash, err := HashPassword(testPasswordConfig, raw)
	require.NoError(t, err)
	require.Contains(t, hash.Expose(), "$argon2id$v=19$m=8,t=1,p=1$")

	ok, err := VerifyPassword(testPasswordConfig.Pepper, raw, hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword(testPasswordConfig, secret.New("Valid1@Pass"))
	require.NoError(t, err)

	ok, err := VerifyPassword(testPasswordConfig.Pepper, secret.New("Other1@Pass"), hash)
	require.NoError(t, err)
	require.False(t, ok)

	// Same password, different pepper.
	ok, err = VerifyPassword(secret.New("not-the-pepper"), secret.New("Valid1@Pass"), hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIsSaltedPerCall(t *testing.T) {
	raw := secret.New("Valid1@Pass")
	h1, err := HashPassword(testPasswordConfig, raw)
	require.NoError(t, err)
	h2, err := HashPassword(testPasswordConfig, raw)
	require.NoError(t, err)
	require.NotEqual(t, h1.Expose(), h2.Expose())
}

func TestVerifyMalformedHash(t *testing.T) {
	for _, s := range []string{
		"$argon2id$v=19$m=8,t=1,p=1$c2FsdA", // missing digest part
		"$bcrypt$v=19$m=8,t=1,p=1$c2FsdA$ZGlnZXN0",
		"$argon2id$v=18$m=8,t=1,p=1$c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=8$c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=8,t=1,p=1$!!$ZGlnZXN0",
	} {
		hash, err := domain.NewPHCString(s)
		require.NoError(t, err)
		_, err = VerifyPassword(testPasswordConfig.Pepper, secret.New("x"), hash)
		require.ErrorIs(t, err, ErrMalformedHash, "input %q", s)
	}
}
