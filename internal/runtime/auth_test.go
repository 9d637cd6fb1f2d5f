package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestSignJWTAndMiddlewareAccepts(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := SignJWT("operator", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var gotSubject string
	handler := EchoAuthMiddleware(secret)(func(c echo.Context) error {
		sub, _ := SubjectFromContext(c.Request().Context())
		gotSubject = sub
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gotSubject != "operator" {
		t.Errorf("subject = %q, want %q", gotSubject, "operator")
	}
}

func TestEchoAuthMiddlewareRejectsMissingToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := EchoAuthMiddleware([]byte("secret"))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	err := handler(c)
	if err == nil {
		t.Fatal("expected error for missing token")
	}
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("err = %v, want 401 HTTPError", err)
	}
}

func TestEchoAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	tok, err := SignJWT("operator", []byte("secret-a"), time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := EchoAuthMiddleware([]byte("secret-b"))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err == nil {
		t.Fatal("expected error for token signed with different secret")
	}
}
