package internal

import (
	"encoding/base64"
	"testing"
)

func TestNewResetToken(t *testing.T) {
	token, digest, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken failed: %v", err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != resetTokenSize {
		t.Fatalf("expected %d raw bytes, got %d err=%v", resetTokenSize, len(raw), err)
	}
	if len(digest) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", digest)
	}
	if HashResetToken(token) != digest {
		t.Fatal("expected digest to be reproducible from the token")
	}
	if HashResetToken(token+"x") == digest {
		t.Fatal("expected different tokens to hash differently")
	}

	other, _, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken failed: %v", err)
	}
	if other == token {
		t.Fatal("expected distinct tokens")
	}
}

func TestNewOpaqueSecret(t *testing.T) {
	a, err := NewOpaqueSecret()
	if err != nil {
		t.Fatalf("NewOpaqueSecret failed: %v", err)
	}
	b, err := NewOpaqueSecret()
	if err != nil {
		t.Fatalf("NewOpaqueSecret failed: %v", err)
	}
	if a == b || len(a) < 40 {
		t.Fatalf("unexpected secrets %q %q", a, b)
	}
}
