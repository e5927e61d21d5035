package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-bytes-0123456789"

func TestStaffTokenRoundTrip(t *testing.T) {
	tok, err := NewStaffToken(testSecret, "", "user-1", "ops@gigexecs.com", time.Hour)
	require.NoError(t, err)

	c, err := ParseToken(testSecret, "", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "ops@gigexecs.com", c.Email)
	assert.False(t, c.Impersonating())
}

func TestImpersonationTokenCarriesSession(t *testing.T) {
	tok, err := NewImpersonationToken(testSecret, "", "user-2", "ann@example.com", "staff-1", "raw-session")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(ImpersonationTTL), tok.Exp, 5*time.Second)

	c, err := ParseToken(testSecret, "", tok.Token)
	require.NoError(t, err)
	assert.True(t, c.Impersonating())
	assert.Equal(t, "staff-1", c.ImpersonatedBy)
	assert.Equal(t, "raw-session", c.SessionToken)
}

func signRaw(t *testing.T, m jwt.SigningMethod, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(m, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func TestParseToken_Rejects(t *testing.T) {
	good, err := NewStaffToken(testSecret, "https://issuer", "user-1", "", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("other-secret", "https://issuer", good.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseToken(testSecret, "https://elsewhere", good.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	expired, err := NewStaffToken(testSecret, "", "user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, "", expired.Token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noAud := signRaw(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	_, err = ParseToken(testSecret, "", noAud)
	assert.ErrorIs(t, err, ErrInvalidStructure)

	noSub := signRaw(t, jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	_, err = ParseToken(testSecret, "", noSub)
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestParseToken_AcceptsOtherHMACSizes(t *testing.T) {
	raw := signRaw(t, jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{Audience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	c, err := ParseToken(testSecret, "", raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
}

func TestHashTokenIsStable(t *testing.T) {
	raw, err := NewSessionToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, HashToken(raw), HashToken(raw))
	assert.NotEqual(t, raw, HashToken(raw))
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("s3cret!", 4)
	require.NoError(t, err)
	ok, rehash := CheckPassword(h, "s3cret!", 4)
	assert.True(t, ok)
	assert.False(t, rehash)

	ok, rehash = CheckPassword(h, "s3cret!", 10)
	assert.True(t, ok)
	assert.True(t, rehash)

	ok, rehash = CheckPassword(h, "wrong", 10)
	assert.False(t, ok)
	assert.False(t, rehash)

	ok, _ = CheckPassword("", "s3cret!", 4)
	assert.False(t, ok)
}
