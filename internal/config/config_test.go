package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("STORE", "Memory")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("Store = %q, want %q", cfg.Store, StoreMemory)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" || cfg.MaxSubmissionsPerUser != 3 || cfg.MinReviewLength != 50 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.AggregateCacheTTL != 30*time.Second || cfg.TransitionSweepInterval != 0 {
		t.Errorf("durations = %v, %v", cfg.AggregateCacheTTL, cfg.TransitionSweepInterval)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled = false, want true")
	}
	if !cfg.Dev() {
		t.Errorf("Dev() = false for APP_ENV %q, want true", cfg.AppEnv)
	}

	s, err := cfg.Schedule()
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if s.VotingDays != 3 || s.CutoffHour != 20 || s.LengthDays != 6 || s.Location != time.UTC {
		t.Errorf("Schedule() = %+v", s)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("CYCLE_TZ", "America/New_York")
	t.Setenv("CYCLE_CUTOFF_HOUR", "18")
	t.Setenv("TRANSITION_SWEEP_INTERVAL", "1m")
	t.Setenv("SPOTIFY_ID", "id")
	t.Setenv("SPOTIFY_SECRET", "secret")
	t.Setenv("APP_ENV", "production")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.TransitionSweepInterval != time.Minute {
		t.Errorf("TransitionSweepInterval = %v, want 1m", cfg.TransitionSweepInterval)
	}
	if !cfg.SpotifyEnabled() {
		t.Error("SpotifyEnabled() = false, want true")
	}
	if cfg.Dev() {
		t.Error("Dev() = true for production, want false")
	}
	s, err := cfg.Schedule()
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if s.Location.String() != "America/New_York" || s.CutoffHour != 18 {
		t.Errorf("Schedule() = %+v", s)
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"postgres without url", map[string]string{"STORE": "postgres"}, "DATABASE_URL"},
		{"unknown store", map[string]string{"STORE": "sqlite"}, "unknown STORE"},
		{"bad timezone", map[string]string{"STORE": "memory", "CYCLE_TZ": "Mars/Olympus"}, "CYCLE_TZ"},
		{"cutoff out of range", map[string]string{"STORE": "memory", "CYCLE_CUTOFF_HOUR": "24"}, "cutoff hour"},
		{"voting longer than cycle", map[string]string{"STORE": "memory", "CYCLE_VOTING_DAYS": "7"}, "voting days"},
		{"negative cap", map[string]string{"STORE": "memory", "MAX_SUBMISSIONS_PER_USER": "-1"}, "MAX_SUBMISSIONS_PER_USER"},
		{"unparseable duration", map[string]string{"STORE": "memory", "AGGREGATE_CACHE_TTL": "soon"}, "reading environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("FromEnv() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
