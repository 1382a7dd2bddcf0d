package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is api",
			check:  func(c *Config) bool { return c.Mode == "api" },
			expect: "api",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default session ttl is 8h",
			check:  func(c *Config) bool { return c.SessionTTL() == 8*time.Hour },
			expect: "8h0m0s",
		},
		{
			name:   "default repair session ttl is 30m",
			check:  func(c *Config) bool { return c.RepairSessionTTL() == 30*time.Minute },
			expect: "30m0s",
		},
		{
			name:   "default freeze duration is 12h",
			check:  func(c *Config) bool { return c.FreezeDuration() == 12*time.Hour },
			expect: "12h0m0s",
		},
		{
			name:   "default publish reason min len is 10",
			check:  func(c *Config) bool { return c.PublishReasonMinLen == 10 },
			expect: "10",
		},
		{
			name:   "dev cookie name used outside production",
			check:  func(c *Config) bool { return c.CookieName() == c.AuthCookieDevName },
			expect: "solvereign_session_dev",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
