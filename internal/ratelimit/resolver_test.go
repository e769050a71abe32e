package ratelimit

import (
	"net/http/httptest"
	"testing"
)

func TestClientKey_PrincipalPrecedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/ping", nil)
	r.Header.Set("CF-Connecting-IP", "1.2.3.4")

	if got := ClientKey(r, Principal{}); got != "ip:1.2.3.4" {
		t.Fatalf("anonymous key = %q, want ip:1.2.3.4", got)
	}
	if got := ClientKey(r, Principal{APIKeyID: "k1"}); got != "key:k1" {
		t.Fatalf("api key = %q, want key:k1", got)
	}
	if got := ClientKey(r, Principal{UserID: "u1", APIKeyID: "k1"}); got != "user:u1" {
		t.Fatalf("user key = %q, want user:u1 (user beats api key)", got)
	}
}

func TestClientKey_Idempotent(t *testing.T) {
	build := func() string {
		r := httptest.NewRequest("GET", "/api/ping", nil)
		r.Header.Set("X-Forwarded-For", "9.9.9.9")
		r.RemoteAddr = "10.0.0.1:5000"
		return ClientKey(r, Principal{})
	}

	first, second := build(), build()
	if first != second {
		t.Fatalf("resolution not stable: %q vs %q", first, second)
	}
}

func TestClientKey_ForwardedForFirstEntry(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1, 172.16.0.1")

	if got := ClientKey(r, Principal{}); got != "ip:9.9.9.9" {
		t.Fatalf("key = %q, want first forwarded entry", got)
	}
}

func TestClientKey_HeaderPrecedenceOverPeer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.Header.Set("X-Real-IP", "8.8.8.8")

	if got := ClientKey(r, Principal{}); got != "ip:8.8.8.8" {
		t.Fatalf("key = %q, want proxy header over peer address", got)
	}
}

func TestClientKey_PeerAddressFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:44444"

	if got := ClientKey(r, Principal{}); got != "ip:203.0.113.7" {
		t.Fatalf("key = %q, want peer host", got)
	}
}

func TestClientKey_UnknownSentinel(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""

	if got := ClientKey(r, Principal{}); got != "unknown" {
		t.Fatalf("key = %q, want unknown", got)
	}
}

func TestClientKey_IgnoresAuthorizationValue(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:44444"
	r.Header.Set("Authorization", "Bearer super-secret-token")

	got := ClientKey(r, Principal{})
	if got != "ip:203.0.113.7" {
		t.Fatalf("key = %q; bearer secrets must never shape the key", got)
	}
}

func TestHashKey_DeterministicAndDistinct(t *testing.T) {
	if hashKey("user:42") != hashKey("user:42") {
		t.Fatal("hash must be deterministic")
	}
	if hashKey("user:42") == hashKey("user:43") {
		t.Fatal("distinct keys should hash apart")
	}
}
