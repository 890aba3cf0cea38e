package slurmproxy

import (
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenericUsername is substituted whenever a caller does not supply a
// username. The minter trusts upstream validation and does not authenticate
// the caller itself.
const GenericUsername = "generic"

// TokenMinter builds short-lived HS256 tokens for the Slurm REST API. The
// signing key is the base64-decoded shared secret loaded at startup; tokens
// are minted fresh for every outbound call and never cached, since their
// lifetime is far shorter than any request timeout.
type TokenMinter struct {
	key            []byte
	expirationSecs int64
	now            func() time.Time
}

// NewTokenMinter decodes the base64-encoded HS256 key and returns a minter
// producing tokens with the given lifetime in seconds. A missing or
// undecodable key is an AuthError, which callers should treat as fatal at
// startup.
func NewTokenMinter(config TokenConfig) (*TokenMinter, error) {
	if config.KeyBase64 == "" {
		return nil, &AuthError{Reason: "SLURM_JWT_HS256_KEY_BASE64 not set"}
	}
	key, err := base64.StdEncoding.DecodeString(config.KeyBase64)
	if err != nil {
		return nil, &AuthError{Reason: "SLURM_JWT_HS256_KEY_BASE64 is not valid base64"}
	}
	expiration := config.ExpirationSecs
	if expiration == 0 {
		expiration = 10
	}
	return &TokenMinter{
		key:            key,
		expirationSecs: expiration,
		now:            time.Now,
	}, nil
}

// Mint produces a compact JWS for the given user with claims
// {sun, iat, exp}. An empty username is coerced to the generic identity.
func (m *TokenMinter) Mint(username string) (string, error) {
	if username == "" {
		username = GenericUsername
	}
	now := m.now()
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Unix() + m.expirationSecs,
		"sun": username,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", &AuthError{Reason: err.Error()}
	}
	return signed, nil
}
