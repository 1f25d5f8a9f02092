package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:41234"
	if got := ClientIP(r, false); got != "203.0.113.9" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
}

func TestClientIPIgnoresForwardedWhenUntrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:41234"
	r.Header.Set("X-Forwarded-For", "198.51.100.7")
	if got := ClientIP(r, false); got != "203.0.113.9" {
		t.Fatalf("forwarded header should be ignored, got %q", got)
	}
}

func TestClientIPForwardedTrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:9999"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	if got := ClientIP(r, true); got != "198.51.100.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestClientIPRealIPTrusted(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:9999"
	r.Header.Set("X-Real-IP", "198.51.100.8")
	if got := ClientIP(r, true); got != "198.51.100.8" {
		t.Fatalf("expected X-Real-IP value, got %q", got)
	}
}
