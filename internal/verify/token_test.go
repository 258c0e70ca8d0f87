package verify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssuer_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer(testSecret)
	require.NoError(t, err)

	token, err := issuer.Issue("203.0.113.5", 62)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")), "expected compact JWS format")

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", claims.IdentityKey)
	assert.Equal(t, 62, claims.Score)
	assert.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestNewIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewIssuer("short")
	assert.Error(t, err)
}

// HS256 needs a 32-byte key; the issuer must derive one rather than hand
// shorter passphrases to the signer.
func TestIssuer_SignsWithShortPassphrase(t *testing.T) {
	issuer, err := NewIssuer("sixteen-byte-key")
	require.NoError(t, err)

	token, err := issuer.Issue("203.0.113.5", 62)
	require.NoError(t, err)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.5", claims.IdentityKey)
}

func TestIssuer_Validate_Errors(t *testing.T) {
	issuer, err := NewIssuer(testSecret)
	require.NoError(t, err)

	t.Run("garbage token", func(t *testing.T) {
		_, err := issuer.Validate("not-a-token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewIssuer("ffffffffffffffffffffffffffffffff")
		require.NoError(t, err)

		token, err := other.Issue("203.0.113.5", 55)
		require.NoError(t, err)

		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, err := NewIssuer(testSecret)
		require.NoError(t, err)
		expired.ttl = -time.Minute

		token, err := expired.Issue("203.0.113.5", 55)
		require.NoError(t, err)

		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := issuer.Issue("203.0.113.5", 55)
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		parts[1] = parts[1][:len(parts[1])-2] + "xx"

		_, err = issuer.Validate(strings.Join(parts, "."))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
