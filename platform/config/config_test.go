package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/followups")
	t.Setenv("CORS_ORIGINS", "https://crm.example.com, *")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetFollowupCycleSpec() != "@every 5m" || cfg.GetFollowupTick() != 5*time.Minute || cfg.GetFollowupWorkers() != 8 {
		t.Fatalf("unexpected follow-up defaults %+v", cfg)
	}
	if cfg.GetPhoneDefaultRegion() != "BR" || cfg.GetAsynqQueueName() != "followups" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.GetCORSAllowAll() || len(cfg.GetCORSOrigins()) != 2 {
		t.Fatalf("expected wildcard origin to allow all, got %v", cfg.GetCORSOrigins())
	}
	if cfg.GetFollowupCounterRetention() != 90*24*time.Hour {
		t.Fatalf("counter retention = %s", cfg.GetFollowupCounterRetention())
	}
	if cfg.GetFollowupTracker() != "redis" {
		t.Fatalf("tracker = %q", cfg.GetFollowupTracker())
	}
	if cfg.GetDatabaseMaxConns() != 25 {
		t.Fatalf("DB max conns = %d", cfg.GetDatabaseMaxConns())
	}
	if cfg.IsAIComposerEnabled() {
		t.Fatal("AI composer must be disabled without a key")
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database", env: map[string]string{"DATABASE_URL": ""}},
		{name: "bad tick", env: map[string]string{"FOLLOWUP_TICK": "soon"}},
		{name: "no connections", env: map[string]string{"DB_MAX_CONNS": "0"}},
		{name: "bad retention", env: map[string]string{"FOLLOWUP_COUNTER_RETENTION": "0s"}},
		{name: "unknown tracker", env: map[string]string{"FOLLOWUP_TRACKER": "etcd"}},
		{name: "no workers", env: map[string]string{"FOLLOWUP_WORKERS": "0"}},
		{name: "bad cycle spec", env: map[string]string{"FOLLOWUP_CYCLE_SPEC": "every five minutes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/followups")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidateCycleSpec(t *testing.T) {
	for _, spec := range []string{"@every 5m", "*/10 8-20 * * 1-5", "@hourly"} {
		if err := ValidateCycleSpec(spec); err != nil {
			t.Fatalf("ValidateCycleSpec(%q): %v", spec, err)
		}
	}
	if err := ValidateCycleSpec("61 * * * *"); err == nil {
		t.Fatal("expected out of range minute to fail")
	}
}
