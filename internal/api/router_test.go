package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSlackRouteDisabledWithoutSigningSecret(t *testing.T) {
	r := NewRouter(Options{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader("payload=%7B%7D"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a signing secret, got %d", rec.Code)
	}
}

func TestSlackRouteRequiresSignature(t *testing.T) {
	r := NewRouter(Options{Logger: zerolog.Nop(), SigningSecret: "secret"})

	req := httptest.NewRequest(http.MethodPost, "/slack/interactions", strings.NewReader("payload=%7B%7D"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for an unsigned callback, got %d", rec.Code)
	}
}
