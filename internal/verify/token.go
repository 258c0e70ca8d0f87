// Package verify issues and validates the short-lived challenge tokens
// returned with verification-required (429) risk decisions. Redeeming a
// token clears the softer infrastructure flags on the identity's abuse
// record; bans are never cleared this way.
package verify

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// TokenTTL is how long a challenge token stays redeemable.
const TokenTTL = 10 * time.Minute

var (
	// ErrTokenExpired is returned when a structurally valid token is past
	// its expiry.
	ErrTokenExpired = errors.New("verification token expired")

	// ErrTokenInvalid is returned for malformed or mis-signed tokens.
	ErrTokenInvalid = errors.New("verification token invalid")
)

// Claims is the signed payload of a challenge token.
type Claims struct {
	IdentityKey string `json:"sub"`
	Score       int    `json:"score"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
}

// Issuer signs and validates challenge tokens with a shared secret.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer creates an issuer for the given signing secret. The secret is
// hashed down to the 32-byte key HS256 requires, so any passphrase that
// clears the minimum length works as configuration.
func NewIssuer(secret string) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("verification secret must be at least 16 bytes")
	}
	key := sha256.Sum256([]byte(secret))
	return &Issuer{key: key[:], ttl: TokenTTL}, nil
}

// Issue signs a challenge token for the identity key and score.
func (i *Issuer) Issue(identityKey string, score int) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: i.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	claims := Claims{
		IdentityKey: identityKey,
		Score:       score,
		IssuedAt:    now.Unix(),
		ExpiresAt:   now.Add(i.ttl).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal claims: %w", err)
	}

	object, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	token, err := object.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	return token, nil
}

// Validate checks the signature and expiry and returns the claims.
func (i *Issuer) Validate(token string) (*Claims, error) {
	object, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	payload, err := object.Verify(i.key)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrTokenInvalid
	}

	if claims.IdentityKey == "" {
		return nil, ErrTokenInvalid
	}
	if time.Now().Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}
