package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hitest/internal/domain"
)

func TestSignAndVerify(t *testing.T) {
	s := StaticSigner("s3cret")

	token, err := s.Sign("admin")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(token, "admin|") {
		t.Fatalf("unexpected token format %q", token)
	}
	if len(token) != len("admin|")+64 {
		t.Fatalf("expected hex sha256 signature, got %q", token)
	}
	if !s.Verify(token) {
		t.Fatalf("expected token to verify")
	}

	if StaticSigner("other").Verify(token) {
		t.Fatalf("token must not verify under a different secret")
	}
	tampered := "root" + strings.TrimPrefix(token, "admin")
	if s.Verify(tampered) {
		t.Fatalf("tampered payload must not verify")
	}
	for _, bad := range []string{"", "admin", "admin|", "|abc", "admin|zz"} {
		if s.Verify(bad) {
			t.Fatalf("malformed token %q verified", bad)
		}
	}
}

func TestMissingSecret(t *testing.T) {
	s := StaticSigner("")
	if _, err := s.Sign("admin"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
	if s.Verify("admin|abc") {
		t.Fatalf("verify must fail without a secret")
	}
}

func TestCookieRoundTrip(t *testing.T) {
	s := StaticSigner("s3cret")
	rec := httptest.NewRecorder()
	if err := s.IssueCookie(rec, true); err != nil {
		t.Fatalf("issue cookie: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || !c.HttpOnly || !c.Secure || c.MaxAge != 8*60*60 || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes %+v", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	if !s.Authenticated(req) {
		t.Fatalf("expected request with cookie to be authenticated")
	}
	if s.Authenticated(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Fatalf("request without cookie must not be authenticated")
	}

	rec = httptest.NewRecorder()
	ClearCookie(rec)
	cleared := rec.Result().Cookies()[0]
	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Fatalf("expected cleared cookie, got %+v", cleared)
	}
}
