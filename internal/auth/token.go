package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"hitest/internal/domain"
)

const (
	// CookieName holds the signed admin session token.
	CookieName = "admin_auth"
	// SessionTTL is the lifetime of an admin login.
	SessionTTL = 8 * time.Hour

	adminPayload = "admin"
)

// Signer produces and checks "payload|hex(hmac-sha256(secret, payload))" tokens.
// The secret is resolved on every call so configuration reloads take effect.
type Signer struct {
	secret func() string
}

func NewSigner(secret func() string) *Signer {
	return &Signer{secret: secret}
}

// StaticSigner is a Signer bound to a fixed secret.
func StaticSigner(secret string) *Signer {
	return NewSigner(func() string { return secret })
}

// Sign returns the token for payload. A missing secret is a configuration error.
func (s *Signer) Sign(payload string) (string, error) {
	secret := s.secret()
	if secret == "" {
		return "", domain.ErrSecretNotConfigured
	}
	return payload + "|" + mac(secret, payload), nil
}

// Verify reports whether token was produced by Sign with the current secret.
func (s *Signer) Verify(token string) bool {
	if token == "" {
		return false
	}
	secret := s.secret()
	if secret == "" {
		return false
	}
	payload, sig, ok := strings.Cut(token, "|")
	if !ok || payload == "" || sig == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(mac(secret, payload)))
}

// Authenticated checks the admin cookie on r.
func (s *Signer) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return s.Verify(c.Value)
}

// IssueCookie signs the admin payload and sets it on w.
func (s *Signer) IssueCookie(w http.ResponseWriter, secure bool) error {
	token, err := s.Sign(adminPayload)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the admin cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func mac(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
