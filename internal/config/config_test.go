package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("MODE", "")
	t.Setenv("EXAM_API_URL", "")
	t.Setenv("STATE_DRIVER", "")
	t.Setenv("TICK_INTERVAL", "")

	cfg := FromEnv()
	if cfg.Mode != ModeOffline {
		t.Fatalf("mode = %q, want offline", cfg.Mode)
	}
	if cfg.ExamAPIURL != "http://localhost:8000/api/v1" {
		t.Fatalf("exam api url = %q", cfg.ExamAPIURL)
	}
	if cfg.StateDriver != "sqlite" {
		t.Fatalf("state driver = %q", cfg.StateDriver)
	}
	if cfg.TickInterval != time.Second {
		t.Fatalf("tick interval = %v", cfg.TickInterval)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("EXAM_API_URL", "https://exams.example/api/v1/")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("USE_MOCK_DATA", "yes")
	t.Setenv("SUBMIT_TIMEOUT", "2s")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")

	cfg := FromEnv()
	if cfg.ExamAPIURL != "https://exams.example/api/v1" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.ExamAPIURL)
	}
	if cfg.RedisDB != 3 || !cfg.UseMockData || cfg.SubmitTimeout != 2*time.Second {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	got := cfg.CORSOrigins()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("origins = %v", got)
	}
}
