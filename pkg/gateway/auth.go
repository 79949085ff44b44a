package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AuthSession is a freshly issued login session.
type AuthSession struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// AuthPrincipal is the identity carried by a verified token.
type AuthPrincipal struct {
	Username  string
	ExpiresAt time.Time
}

// AuthService issues and verifies HMAC-signed bearer tokens for the
// single configured operator account. Tokens are
// base64url(username.expiry.nonce) + "." + hex(hmac-sha256).
type AuthService struct {
	username string
	password string
	secret   []byte
	tokenTTL time.Duration
}

// AuthConfig holds the operator credentials and token parameters.
type AuthConfig struct {
	Username string
	Password string
	Secret   string
	TokenTTL time.Duration
}

// NewAuthService creates an auth service.
func NewAuthService(cfg AuthConfig) (*AuthService, error) {
	if cfg.Username == "" || cfg.Password == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("auth username, password and token secret are required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &AuthService{
		username: cfg.Username,
		password: cfg.Password,
		secret:   []byte(cfg.Secret),
		tokenTTL: cfg.TokenTTL,
	}, nil
}

// Login verifies credentials and returns a session, or nil when they
// do not match.
func (a *AuthService) Login(username, password string) (*AuthSession, error) {
	userOk := safeEqual(a.username, username)
	passOk := safeEqual(a.password, password)
	if !userOk || !passOk {
		return nil, nil
	}

	expiresAt := time.Now().Add(a.tokenTTL)
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	payload := fmt.Sprintf("%s.%d.%s", a.username, expiresAt.Unix(), hex.EncodeToString(nonce))
	token := fmt.Sprintf("%s.%s",
		base64.RawURLEncoding.EncodeToString([]byte(payload)),
		a.sign(payload))

	return &AuthSession{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// VerifyToken returns the principal a valid token carries, or nil for
// any malformed, forged or expired token.
func (a *AuthService) VerifyToken(token string) *AuthPrincipal {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil
	}
	payload := string(payloadBytes)
	if !safeEqual(a.sign(payload), parts[1]) {
		return nil
	}

	// Split from the right: the configured username may itself
	// contain dots, the expiry and nonce never do.
	nonceDot := strings.LastIndex(payload, ".")
	if nonceDot <= 0 {
		return nil
	}
	expiryDot := strings.LastIndex(payload[:nonceDot], ".")
	if expiryDot <= 0 {
		return nil
	}
	username := payload[:expiryDot]
	expiresAtSec, err := strconv.ParseInt(payload[expiryDot+1:nonceDot], 10, 64)
	if err != nil {
		return nil
	}
	if !safeEqual(username, a.username) {
		return nil
	}
	if time.Now().Unix() > expiresAtSec {
		return nil
	}

	return &AuthPrincipal{
		Username:  username,
		ExpiresAt: time.Unix(expiresAtSec, 0),
	}
}

// ExtractBearerToken pulls the token out of an Authorization header,
// or returns "" when the header is absent or not a bearer scheme.
func (a *AuthService) ExtractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || token == "" {
		return ""
	}
	if !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return token
}

func (a *AuthService) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func safeEqual(left, right string) bool {
	return subtle.ConstantTimeCompare([]byte(left), []byte(right)) == 1
}
