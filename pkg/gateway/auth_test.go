package gateway

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	auth, err := NewAuthService(AuthConfig{
		Username: "admin",
		Password: "hunter2",
		Secret:   "token-secret",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)
	return auth
}

func TestLoginAndVerify(t *testing.T) {
	auth := newAuth(t)

	session, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.Token)

	principal := auth.VerifyToken(session.Token)
	require.NotNil(t, principal)
	assert.Equal(t, "admin", principal.Username)
	assert.True(t, principal.ExpiresAt.After(time.Now()))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newAuth(t)

	session, err := auth.Login("admin", "wrong")
	require.NoError(t, err)
	assert.Nil(t, session)

	session, err = auth.Login("intruder", "hunter2")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	auth := newAuth(t)

	session, err := auth.Login("admin", "hunter2")
	require.NoError(t, err)

	parts := strings.SplitN(session.Token, ".", 2)
	require.Len(t, parts, 2)

	// Re-encode a payload claiming a different user with the original
	// signature.
	forged := base64.RawURLEncoding.EncodeToString([]byte(
		fmt.Sprintf("root.%d.abc", time.Now().Add(time.Hour).Unix()))) + "." + parts[1]
	assert.Nil(t, auth.VerifyToken(forged))

	assert.Nil(t, auth.VerifyToken("not-a-token"))
	assert.Nil(t, auth.VerifyToken(parts[0]))
	assert.Nil(t, auth.VerifyToken(""))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	auth := newAuth(t)

	// Sign an already expired payload with the real secret.
	payload := fmt.Sprintf("admin.%d.abc", time.Now().Add(-time.Minute).Unix())
	token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + auth.sign(payload)
	assert.Nil(t, auth.VerifyToken(token))
}

func TestVerifyRejectsForeignUser(t *testing.T) {
	auth := newAuth(t)

	payload := fmt.Sprintf("someone-else.%d.abc", time.Now().Add(time.Hour).Unix())
	token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + auth.sign(payload)
	assert.Nil(t, auth.VerifyToken(token))
}

func TestVerifyAcceptsDottedUsername(t *testing.T) {
	auth, err := NewAuthService(AuthConfig{
		Username: "ops.admin",
		Password: "hunter2",
		Secret:   "token-secret",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)

	session, err := auth.Login("ops.admin", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, session)

	principal := auth.VerifyToken(session.Token)
	require.NotNil(t, principal)
	assert.Equal(t, "ops.admin", principal.Username)
}

func TestExtractBearerToken(t *testing.T) {
	auth := newAuth(t)

	assert.Equal(t, "abc", auth.ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.ExtractBearerToken("bearer abc"))
	assert.Empty(t, auth.ExtractBearerToken(""))
	assert.Empty(t, auth.ExtractBearerToken("Basic abc"))
	assert.Empty(t, auth.ExtractBearerToken("Bearer"))
}

func TestNewAuthServiceValidates(t *testing.T) {
	_, err := NewAuthService(AuthConfig{Password: "p", Secret: "s"})
	require.Error(t, err)
	_, err = NewAuthService(AuthConfig{Username: "u", Secret: "s"})
	require.Error(t, err)
	_, err = NewAuthService(AuthConfig{Username: "u", Password: "p"})
	require.Error(t, err)
}
