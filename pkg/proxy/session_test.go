package proxy

import (
	"strings"
	"testing"
)

func TestNewStickySessionGeneratesID(t *testing.T) {
	cfg, err := NewStickySession(Config{Username: "user", Password: "pass"}, 30)
	if err != nil {
		t.Fatalf("NewStickySession() error = %v", err)
	}

	if len(cfg.SessionID) != sessionIDLength {
		t.Errorf("SessionID %q has length %d, want %d", cfg.SessionID, len(cfg.SessionID), sessionIDLength)
	}
	if strings.Contains(cfg.SessionID, "-") {
		t.Errorf("SessionID %q contains a dash", cfg.SessionID)
	}
	if cfg.SessionDuration != 30 {
		t.Errorf("SessionDuration = %d, want 30", cfg.SessionDuration)
	}

	other, err := NewStickySession(Config{Username: "user", Password: "pass"}, 30)
	if err != nil {
		t.Fatalf("NewStickySession() error = %v", err)
	}
	if other.SessionID == cfg.SessionID {
		t.Error("two generated sessions share the same id")
	}
}

func TestNewStickySessionKeepsCallerID(t *testing.T) {
	cfg, err := NewStickySession(Config{Username: "user", Password: "pass", SessionID: "abc123"}, 10)
	if err != nil {
		t.Fatalf("NewStickySession() error = %v", err)
	}
	if cfg.SessionID != "abc123" {
		t.Errorf("SessionID = %q, want abc123", cfg.SessionID)
	}

	want := "td-customer-user-sessid-abc123-sesstime-10"
	if got := cfg.BuildUsername(); got != want {
		t.Errorf("BuildUsername() = %q, want %q", got, want)
	}
}

func TestNewStickySessionRejectsBadDuration(t *testing.T) {
	if _, err := NewStickySession(Config{Username: "user", Password: "pass"}, 91); err == nil {
		t.Error("NewStickySession() expected error for duration 91")
	}
	if _, err := NewStickySession(Config{Username: "user", Password: "pass"}, -1); err == nil {
		t.Error("NewStickySession() expected error for duration -1")
	}
}
