package totp

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func encodeSecret(raw string) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(raw))
}

func TestVerifyRFC6238Vectors(t *testing.T) {
	suites := []struct {
		algorithm string
		secret    string
		cases     []struct {
			ts   int64
			code string
		}
	}{
		{
			algorithm: "SHA1",
			secret:    "12345678901234567890",
			cases: []struct {
				ts   int64
				code string
			}{
				{59, "94287082"},
				{1111111109, "07081804"},
				{1111111111, "14050471"},
				{1234567890, "89005924"},
				{2000000000, "69279037"},
				{20000000000, "65353130"},
			},
		},
		{
			algorithm: "SHA256",
			secret:    "12345678901234567890123456789012",
			cases: []struct {
				ts   int64
				code string
			}{
				{59, "46119246"},
				{1111111109, "68084774"},
				{1111111111, "67062674"},
				{1234567890, "91819424"},
				{2000000000, "90698825"},
				{20000000000, "77737706"},
			},
		},
		{
			algorithm: "SHA512",
			secret:    "1234567890123456789012345678901234567890123456789012345678901234",
			cases: []struct {
				ts   int64
				code string
			}{
				{59, "90693936"},
				{1111111109, "25091201"},
				{1111111111, "99943326"},
				{1234567890, "93441116"},
				{2000000000, "38618901"},
				{20000000000, "47863826"},
			},
		},
	}

	for _, suite := range suites {
		e := newTestEngine(t, Config{Issuer: "authcore", Digits: 8, Period: 30, Algorithm: suite.algorithm, Skew: 0})
		secret := encodeSecret(suite.secret)
		for _, tc := range suite.cases {
			if !e.Verify(secret, tc.code, time.Unix(tc.ts, 0)) {
				t.Fatalf("%s vector failed at t=%d", suite.algorithm, tc.ts)
			}
			code, err := e.Code(secret, time.Unix(tc.ts, 0))
			if err != nil || code != tc.code {
				t.Fatalf("%s Code at t=%d = %q, %v; want %q", suite.algorithm, tc.ts, code, err, tc.code)
			}
		}
	}
}

func TestVerifySkewWindow(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}

	now := time.Unix(1700000000, 0)
	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := e.Code(secret, now.Add(offset))
		if err != nil {
			t.Fatalf("Code failed: %v", err)
		}
		if !e.Verify(secret, code, now) {
			t.Fatalf("expected code at offset %v to be accepted", offset)
		}
	}

	for _, offset := range []time.Duration{-60 * time.Second, 60 * time.Second} {
		code, err := e.Code(secret, now.Add(offset))
		if err != nil {
			t.Fatalf("Code failed: %v", err)
		}
		current, _ := e.Code(secret, now)
		if code == current {
			continue
		}
		if e.Verify(secret, code, now) {
			t.Fatalf("expected code two steps away (%v) to be rejected", offset)
		}
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	secret, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		if e.Verify(secret, code, now) {
			t.Fatalf("expected malformed code %q to be rejected", code)
		}
	}

	code, _ := e.Code(secret, now)
	if e.Verify("", code, now) {
		t.Fatal("expected empty secret to be rejected")
	}
	if e.Verify("!!not-base32!!", code, now) {
		t.Fatal("expected undecodable secret to be rejected")
	}
}

func TestGenerateSecretShape(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	a, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	b, err := e.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct secrets")
	}
	if strings.Contains(a, "=") {
		t.Fatalf("expected unpadded base32, got %q", a)
	}
	raw, err := DecodeSecret(strings.ToLower(a))
	if err != nil || len(raw) != SecretBytes {
		t.Fatalf("DecodeSecret = %d bytes, %v", len(raw), err)
	}
}

func TestProvisioningURI(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	uri := e.ProvisioningURI("JBSWY3DPEHPK3PXP", "a@x.com")
	if !strings.HasPrefix(uri, "otpauth://totp/authcore:a@x.com?") {
		t.Fatalf("unexpected uri: %s", uri)
	}
	for _, part := range []string{"secret=JBSWY3DPEHPK3PXP", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(uri, part) {
			t.Fatalf("expected %q in %s", part, uri)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := []Config{
		{Digits: 4, Period: 30},
		{Digits: 6, Period: 0},
		{Digits: 6, Period: 30, Skew: 9},
		{Digits: 6, Period: 30, Algorithm: "MD5"},
	}
	for _, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
}
