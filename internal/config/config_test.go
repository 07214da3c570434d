package config

import "testing"

func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()

	if cfg.Mode != ModeDryRun {
		t.Errorf("default mode = %s, want dry-run", cfg.Mode)
	}
	if cfg.HTTP.Listen != "0.0.0.0:8080" {
		t.Errorf("default http.listen = %s, want 0.0.0.0:8080", cfg.HTTP.Listen)
	}
	if !cfg.Guardrails.RequireTTL {
		t.Error("default guardrails.require_ttl should be true")
	}
	if cfg.Guardrails.MaxPorts != 8 {
		t.Errorf("default guardrails.max_ports = %d, want 8", cfg.Guardrails.MaxPorts)
	}
	if cfg.Quotas.MaxActivePerCustomer != 5 {
		t.Errorf("default quotas.max_active_per_customer = %d, want 5", cfg.Quotas.MaxActivePerCustomer)
	}
	if cfg.Timers.DefaultTTLSeconds != 120 {
		t.Errorf("default timers.default_ttl_seconds = %d, want 120", cfg.Timers.DefaultTTLSeconds)
	}
	if !cfg.Escalation.Enabled {
		t.Error("default escalation.enabled should be true")
	}
}

func TestSettingsValidateRequiresPOP(t *testing.T) {
	cfg := DefaultSettings()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing pop")
	}
	cfg.POP = "iad1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestSettingsValidateRejectsBadMode(t *testing.T) {
	cfg := DefaultSettings()
	cfg.POP = "iad1"
	cfg.Mode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for bad mode")
	}
}

func TestRateLimitAccessorsAreThreadSafe(t *testing.T) {
	cfg := DefaultSettings()
	cfg.SetRateLimit(RateLimitConfig{EventsPerSecond: 50, Burst: 200})
	rl := cfg.GetRateLimit()
	if rl.EventsPerSecond != 50 || rl.Burst != 200 {
		t.Errorf("GetRateLimit() = %+v, want {50 200}", rl)
	}
}
