package utils

import (
	"net/http/httptest"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	if got := RealClientIP(req); got != "192.0.2.7" {
		t.Fatalf("RealClientIP() = %q, want socket address", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := RealClientIP(req); got != "203.0.113.9" {
		t.Fatalf("RealClientIP() = %q, want first forwarded hop", got)
	}
}
