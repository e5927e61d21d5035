// Package auth verifies bearer tokens issued by the identity provider and
// signs the staff and impersonation tokens the API mints itself.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the "aud" claim carried by every user-facing token.
const Audience = "authenticated"

// ImpersonationTTL is the fixed lifetime of an impersonation token.
const ImpersonationTTL = 15 * time.Minute

// Claims are the JWT claims the API issues and accepts.  Tokens issued by
// the identity provider carry Email, Role and the two metadata maps; tokens
// minted for staff impersonation additionally carry ImpersonatedBy (the
// staff row id) and SessionToken (the raw secret whose hash is stored with
// the session).
type Claims struct {
	Email          string         `json:"email,omitempty"`
	Role           string         `json:"role,omitempty"`
	AppMetadata    map[string]any `json:"app_metadata,omitempty"`
	UserMetadata   map[string]any `json:"user_metadata,omitempty"`
	ImpersonatedBy string         `json:"impersonated_by,omitempty"`
	SessionToken   string         `json:"session_token,omitempty"`
	jwt.RegisteredClaims
}

// Impersonating reports whether the token was minted for a staff member
// acting as the subject.
func (c *Claims) Impersonating() bool { return c.ImpersonatedBy != "" }

// AccessToken represents a signed JWT along with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewStaffToken signs an HS256 session token for a staff member after a
// password login.  The subject is the staff member's user id so that the
// same auth gate accepts it.
func NewStaffToken(secret, issuer, userID, email string, ttl time.Duration) (AccessToken, error) {
	return sign(secret, Claims{
		Email: email,
		Role:  Audience,
	}, issuer, userID, ttl)
}

// NewImpersonationToken signs a short-lived token whose subject is the
// impersonated user.  sessionToken ties it to a revocable session row.
func NewImpersonationToken(secret, issuer, userID, email, staffID, sessionToken string) (AccessToken, error) {
	return sign(secret, Claims{
		Email:          email,
		Role:           Audience,
		ImpersonatedBy: staffID,
		SessionToken:   sessionToken,
	}, issuer, userID, ImpersonationTTL)
}

func sign(secret string, c Claims, issuer, subject string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{Audience},
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ErrInvalidStructure is returned for a well-signed token missing "sub"
// or "aud".
var ErrInvalidStructure = errors.New("Invalid token structure")

// ParseToken verifies signature and expiry of raw.  Only HMAC algorithms
// are accepted.  When issuer is non-empty the "iss" claim must match it.
func ParseToken(secret, issuer, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	c := &Claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if c.Subject == "" || len(c.Audience) == 0 {
		return nil, ErrInvalidStructure
	}
	return c, nil
}

// NewSessionToken returns 32 random bytes hex encoded.
func NewSessionToken() (string, error) {
	return randomHex(32)
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.  Only
// the hash is stored so that a leaked table cannot be replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
