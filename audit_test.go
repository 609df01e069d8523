package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func auditConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Audit.DropIfFull = false
	return cfg
}

func newAuditTestEngine(t *testing.T) (*testEnv, *ChannelSink, func()) {
	t.Helper()

	sink := NewChannelSink(64)
	env, done := newTestEngineWithSink(t, auditConfig(), sink)
	return env, sink, done
}

// waitForEvent drains the sink until an event of the wanted type arrives.
func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %q audit event arrived", eventType)
		}
	}
}

func TestAuditLoginEvents(t *testing.T) {
	env, sink, done := newAuditTestEngine(t)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	waitForEvent(t, sink, "account_created")

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	event := waitForEvent(t, sink, "login_success")
	if event.UserID != userID {
		t.Fatalf("expected user %q on login event, got %q", userID, event.UserID)
	}
	if event.SessionID != res.Tokens.SessionID {
		t.Fatalf("expected session %q on login event, got %q", res.Tokens.SessionID, event.SessionID)
	}
	if !event.Success {
		t.Fatal("login_success event must carry Success=true")
	}
	if event.ID == "" {
		t.Fatal("audit events must carry a ULID id")
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong-password-456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	failure := waitForEvent(t, sink, "login_failure")
	if failure.Success {
		t.Fatal("login_failure event must carry Success=false")
	}
	if failure.ErrorCode != "invalid_credentials" {
		t.Fatalf("expected error code invalid_credentials, got %q", failure.ErrorCode)
	}
}

func TestAuditCarriesActorAndClientIP(t *testing.T) {
	env, sink, done := newAuditTestEngine(t)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	waitForEvent(t, sink, "account_created")

	ctx := WithActor(context.Background(), "admin-7")
	ctx = WithClientIP(ctx, "203.0.113.9")
	if err := env.engine.AssignRole(ctx, userID, "admin", nil); err != nil {
		t.Fatalf("AssignRole failed: %v", err)
	}

	event := waitForEvent(t, sink, "role_assigned")
	if event.ActorID != "admin-7" {
		t.Fatalf("expected actor admin-7, got %q", event.ActorID)
	}
	if event.IP != "203.0.113.9" {
		t.Fatalf("expected client ip on event, got %q", event.IP)
	}
	if event.Metadata["role"] != "admin" {
		t.Fatalf("expected role metadata, got %v", event.Metadata)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	cfg := auditConfig()
	cfg.Audit.Enabled = false

	sink := NewChannelSink(16)
	env, done := newTestEngineWithSink(t, cfg, sink)
	defer done()

	createTestUser(t, env, "alice@example.com", "correct-password-123")

	select {
	case event := <-sink.Events():
		t.Fatalf("unexpected audit event %q with audit disabled", event.EventType)
	case <-time.After(50 * time.Millisecond):
	}
}

/* ==== DISPATCHER ==== */

type blockingSink struct {
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Emit(ctx context.Context, event AuditEvent) {
	<-s.release
}

func (s *blockingSink) unblock() {
	s.once.Do(func() { close(s.release) })
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		sink.unblock()
		d.Close()
	}()

	// One event can be in flight and one buffered. Everything beyond that
	// must be counted as dropped, not block the caller.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_failure"})
	}

	deadline := time.After(2 * time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected dropped events under backpressure")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestAuditDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "session_sweep"})
	}
	d.Close()

	for i := 0; i < 5; i++ {
		select {
		case <-sink.Events():
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered before Close returned", i)
		}
	}

	// Emitting after Close is a silent no-op.
	d.Emit(context.Background(), AuditEvent{EventType: "session_sweep"})
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		ID:        "01AN4Z07BY79KA1307SR9X4MV3",
		EventType: "login_success",
		UserID:    "u1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		ID:        "01AN4Z07BY79KA1307SR9X4MV4",
		EventType: "login_failure",
		ErrorCode: "invalid_credentials",
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first line is not valid JSON: %v", err)
	}
	if first.EventType != "login_success" || first.UserID != "u1" {
		t.Fatalf("unexpected first event: %+v", first)
	}
}
