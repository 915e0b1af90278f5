package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.StoreBackend != "postgres" {
		t.Errorf("StoreBackend = %q, want postgres", cfg.StoreBackend)
	}
	if cfg.FaceTimeout != 30*time.Second {
		t.Errorf("FaceTimeout = %v, want 30s", cfg.FaceTimeout)
	}
	if cfg.DefaultSubject != "General" || cfg.DefaultClass != "10th Grade" || cfg.DefaultDivision != "A" {
		t.Errorf("session defaults = %q/%q/%q", cfg.DefaultSubject, cfg.DefaultClass, cfg.DefaultDivision)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("FACE_TIMEOUT", "5s")
	t.Setenv("FACE_SKIP", "true")
	t.Setenv("RATE_LIMIT_PER_MIN", "10")
	t.Setenv("DEFAULT_SUBJECT", "Physics")

	cfg := Load()

	if cfg.StoreBackend != "mongo" {
		t.Errorf("StoreBackend = %q, want mongo", cfg.StoreBackend)
	}
	if cfg.FaceTimeout != 5*time.Second {
		t.Errorf("FaceTimeout = %v, want 5s", cfg.FaceTimeout)
	}
	if !cfg.FaceSkip {
		t.Error("FaceSkip = false, want true")
	}
	if cfg.RateLimitPerMin != 10 {
		t.Errorf("RateLimitPerMin = %d, want 10", cfg.RateLimitPerMin)
	}
	if cfg.DefaultSubject != "Physics" {
		t.Errorf("DefaultSubject = %q, want Physics", cfg.DefaultSubject)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("FACE_TIMEOUT", "soon")
	t.Setenv("FACE_SKIP", "maybe")
	t.Setenv("NOTIFY_MAX", "lots")

	cfg := Load()

	if cfg.FaceTimeout != 30*time.Second {
		t.Errorf("FaceTimeout = %v, want fallback 30s", cfg.FaceTimeout)
	}
	if cfg.FaceSkip {
		t.Error("FaceSkip = true, want fallback false")
	}
	if cfg.NotifyMax != 100 {
		t.Errorf("NotifyMax = %d, want fallback 100", cfg.NotifyMax)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*App)
		wantErr bool
	}{
		{"defaults", func(*App) {}, false},
		{"unknown store", func(a *App) { a.StoreBackend = "sqlite" }, true},
		{"unknown cache", func(a *App) { a.CacheBackend = "memcached" }, true},
		{"prod with dev key", func(a *App) { a.Env = "production" }, true},
		{"prod with real key", func(a *App) { a.Env = "production"; a.JWTSigningKey = "s3cret" }, false},
		{"zero face timeout", func(a *App) { a.FaceTimeout = 0 }, true},
		{"rate limit off", func(a *App) { a.RateLimitPerMin = 0 }, false},
		{"negative rate limit", func(a *App) { a.RateLimitPerMin = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRateLimitEnabled(t *testing.T) {
	for perMin, want := range map[int]bool{120: true, 1: true, 0: false} {
		if got := (App{RateLimitPerMin: perMin}).RateLimitEnabled(); got != want {
			t.Errorf("RateLimitEnabled(%d) = %v, want %v", perMin, got, want)
		}
	}
}
