package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.DedupTTL != 60*time.Second {
		t.Errorf("expected 60s dedup ttl, got %s", cfg.DedupTTL)
	}
	if cfg.LeadValidity != 24*time.Hour {
		t.Errorf("expected 24h lead validity, got %s", cfg.LeadValidity)
	}
	if cfg.MediaRetention != 30*24*time.Hour {
		t.Errorf("expected 30d media retention, got %s", cfg.MediaRetention)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DEDUP_TTL", "90s")
	t.Setenv("SLOT_DURATION_MINUTES", "30")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.DedupTTL != 90*time.Second {
		t.Errorf("expected 90s dedup ttl, got %s", cfg.DedupTTL)
	}
	if cfg.SlotDurationMinutes != 30 {
		t.Errorf("expected 30 minute slots, got %d", cfg.SlotDurationMinutes)
	}
}
