package services

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestMagicLinkIsSingleUse(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, SMTPConfig{}, nil)

	link, err := auth.GenerateMagicLink("Ada@Example.com", "http://localhost:3001")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://localhost:3001/api/auth/magic-link?token="))

	id, err := auth.VerifyMagicLinkToken(tokenFromLink(t, link))
	require.NoError(t, err)
	assert.Equal(t, "Ada@Example.com", id.Email)
	assert.Equal(t, EmailUID("ada@example.com"), id.UID)

	_, err = auth.VerifyMagicLinkToken(tokenFromLink(t, link))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMagicLinkExpires(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, SMTPConfig{}, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	link, err := auth.GenerateMagicLink("ada@example.com", "")
	require.NoError(t, err)

	now = now.Add(magicLinkTTL + time.Second)
	_, err = auth.VerifyMagicLinkToken(tokenFromLink(t, link))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMagicLinkRejectsBadEmail(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, SMTPConfig{}, nil)
	_, err := auth.GenerateMagicLink("not an email", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestJWTRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, SMTPConfig{}, nil)

	token, err := auth.CreateJWT(Identity{UID: "u1", Email: "u1@example.com", Name: "ignored"})
	require.NoError(t, err)

	id, err := auth.VerifyJWT(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UID: "u1", Email: "u1@example.com"}, id)
}

func TestJWTRejectsForeignAndExpired(t *testing.T) {
	auth := NewAuthService("secret", time.Hour, SMTPConfig{}, nil)
	other := NewAuthService("other-secret", time.Hour, SMTPConfig{}, nil)

	token, err := other.CreateJWT(Identity{UID: "u1"})
	require.NoError(t, err)
	_, err = auth.VerifyJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, err = auth.CreateJWT(Identity{UID: "u1"})
	require.NoError(t, err)
	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.VerifyJWT(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = auth.VerifyJWT("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmailUIDStable(t *testing.T) {
	assert.Equal(t, EmailUID("a@example.com"), EmailUID(" A@Example.com "))
	assert.NotEqual(t, EmailUID("a@example.com"), EmailUID("b@example.com"))
}
