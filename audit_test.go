package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func auditConfig(t *testing.T) Config {
	t.Helper()

	cfg := testConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func drainEvents(t *testing.T, engine *Engine, sink *ChannelSink) []AuditEvent {
	t.Helper()

	engine.Close()
	var events []AuditEvent
	for {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func findEvent(events []AuditEvent, eventType string) (AuditEvent, bool) {
	for _, ev := range events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return AuditEvent{}, false
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine := newTestEngine(t, testEngineOptions{auditSink: sink})

	mustSignup(t, engine, "a@x.com", "Secret123")
	_, _ = engine.Login(context.Background(), "a@x.com", "wrong")
	engine.Close()

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no sink calls when disabled, got %d", got)
	}
}

func TestAuditLoginFailureCarriesFields(t *testing.T) {
	cfg := auditConfig(t)
	sink := NewChannelSink(64)
	engine := newTestEngine(t, testEngineOptions{config: &cfg, auditSink: sink})
	signup := mustSignup(t, engine, "a@x.com", "Secret123")

	_, _ = engine.Login(WithClientIP(context.Background(), "203.0.113.1"), "a@x.com", "wrong")
	events := drainEvents(t, engine, sink)

	if _, ok := findEvent(events, auditEventSignupSuccess); !ok {
		t.Fatal("expected a signup_success event")
	}
	ev, ok := findEvent(events, auditEventLoginFailure)
	if !ok {
		t.Fatalf("expected a login_failure event, got %+v", events)
	}
	if ev.Success || ev.UserID != signup.User.ID || ev.IP != "203.0.113.1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Error != string(auditErrInvalidCredentials) || ev.Metadata["reason"] != "password_mismatch" {
		t.Fatalf("unexpected error fields %+v", ev)
	}
	if ev.Timestamp.IsZero() || time.Since(ev.Timestamp) > time.Minute {
		t.Fatalf("unexpected timestamp %v", ev.Timestamp)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := auditConfig(t)
	var buf bytes.Buffer
	engine := newTestEngine(t, testEngineOptions{config: &cfg, auditSink: NewJSONWriterSink(&buf), mailer: &mockMailer{}})
	ctx := context.Background()

	signup := mustSignup(t, engine, "a@x.com", "Secret123")
	_, _ = engine.Login(ctx, "a@x.com", "Secret123")
	enrollment, err := engine.Enable2FA(ctx, signup.User.ID)
	if err != nil {
		t.Fatalf("Enable2FA failed: %v", err)
	}
	if _, err := engine.ForgetPassword(ctx, "a@x.com"); err != nil {
		t.Fatalf("ForgetPassword failed: %v", err)
	}
	engine.Close()

	out := buf.String()
	for _, secret := range []string{"Secret123", signup.Tokens.AccessToken, signup.Tokens.RefreshToken, enrollment.Secret} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked %q", secret)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 4 {
		t.Fatalf("expected at least four events, got %d", len(lines))
	}
	for _, line := range lines {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
	}
}

func TestAuditRateLimitEmitsTriggerEvent(t *testing.T) {
	_, rdb := newTestRedis(t)
	cfg := auditConfig(t)
	cfg.RateLimit.Login = LimitPolicy{MaxAttempts: 1, Window: time.Minute}
	sink := NewChannelSink(64)
	engine := newTestEngine(t, testEngineOptions{config: &cfg, auditSink: sink, redis: rdb})
	mustSignup(t, engine, "a@x.com", "Secret123")

	_, _ = engine.Login(context.Background(), "a@x.com", "wrong")
	_, _ = engine.Login(context.Background(), "a@x.com", "wrong")
	events := drainEvents(t, engine, sink)

	ev, ok := findEvent(events, auditEventRateLimitTriggered)
	if !ok {
		t.Fatalf("expected a rate_limit_triggered event, got %+v", events)
	}
	if ev.Metadata["scope"] != "login" {
		t.Fatalf("unexpected scope %q", ev.Metadata["scope"])
	}
	if got := engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}
