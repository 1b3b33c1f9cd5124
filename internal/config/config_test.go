package config

import (
	"testing"
	"time"

	"github.com/xuzinann/whale-monitor/internal/model"
)

func validConfig() Config {
	return Config{
		PollInterval:    10 * time.Minute,
		RequestInterval: 20 * time.Second,
		MaxRetries:      5,
		RetentionDays:   30,
		DigestTime:      "09:00",
		Thresholds:      model.DefaultThresholds(),
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"poll interval below floor", func(c *Config) { c.PollInterval = time.Minute }},
		{"zero request interval", func(c *Config) { c.RequestInterval = 0 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero retention", func(c *Config) { c.RetentionDays = 0 }},
		{"malformed digest time", func(c *Config) { c.DigestTime = "9am" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval != 10*time.Minute {
		t.Errorf("poll interval = %s, want 10m", cfg.PollInterval)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("retention = %d, want 30", cfg.RetentionDays)
	}
	if got := cfg.Thresholds[model.CoinBTC].LargeTx; got != 50 {
		t.Errorf("btc large-tx threshold = %v, want 50", got)
	}
}
