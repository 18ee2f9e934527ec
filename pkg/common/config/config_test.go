package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.QuestionBudget != 8 {
		t.Fatalf("expected default budget 8, got %d", cfg.QuestionBudget)
	}
	if cfg.StopMargin != 0.20 {
		t.Fatalf("expected default margin 0.20, got %v", cfg.StopMargin)
	}
	if cfg.TopK != 5 {
		t.Fatalf("expected default top-k 5, got %d", cfg.TopK)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENGINE_QUESTION_BUDGET", "4")
	t.Setenv("ENGINE_STOP_MARGIN", "0.35")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("RESULT_CACHE_TTL", "90s")
	t.Setenv("EVENTS_ENABLED", "false")

	cfg := Load()
	if cfg.QuestionBudget != 4 {
		t.Fatalf("expected budget 4, got %d", cfg.QuestionBudget)
	}
	if cfg.StopMargin != 0.35 {
		t.Fatalf("expected margin 0.35, got %v", cfg.StopMargin)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.ResultCacheTTL != 90*time.Second {
		t.Fatalf("expected 90s ttl, got %v", cfg.ResultCacheTTL)
	}
	if cfg.EventsEnabled {
		t.Fatal("expected events disabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ENGINE_TOP_K", "lots")
	t.Setenv("SESSION_AUDIT_ENABLED", "maybe")

	cfg := Load()
	if cfg.TopK != 5 {
		t.Fatalf("expected fallback top-k 5, got %d", cfg.TopK)
	}
	if !cfg.SessionAuditEnabled {
		t.Fatal("expected audit to stay enabled on malformed value")
	}
}
