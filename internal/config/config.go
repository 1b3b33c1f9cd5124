package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xuzinann/whale-monitor/internal/model"
)

// minPollInterval keeps the monitor inside BlockCypher's free-tier budget.
const minPollInterval = 5 * time.Minute

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	DatabaseURL       string
	DataDir           string
	RecordLog         string
	BlockCypherToken  string
	DiscordWebhookURL string
	PollInterval      time.Duration
	RequestInterval   time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
	DigestTime        string
	Timezone          string
	RetentionDays     int
	AlertMinScore     int
	LogLevel          string
	Thresholds        model.Thresholds
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WHALEMON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "./data")
	v.SetDefault("record-log", "./data/transactions.jsonl")
	v.SetDefault("poll-interval", 10*time.Minute)
	v.SetDefault("request-interval", 20*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("digest-time", "09:00")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("retention-days", 30)
	v.SetDefault("alert-min-score", 0)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		DatabaseURL:       v.GetString("database-url"),
		DataDir:           v.GetString("data-dir"),
		RecordLog:         v.GetString("record-log"),
		BlockCypherToken:  v.GetString("blockcypher-token"),
		DiscordWebhookURL: v.GetString("discord-webhook-url"),
		PollInterval:      v.GetDuration("poll-interval"),
		RequestInterval:   v.GetDuration("request-interval"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		DigestTime:        v.GetString("digest-time"),
		Timezone:          v.GetString("timezone"),
		RetentionDays:     v.GetInt("retention-days"),
		AlertMinScore:     v.GetInt("alert-min-score"),
		LogLevel:          v.GetString("log-level"),
		Thresholds:        loadThresholds(v),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that loaded values are usable before any component starts.
func (c Config) Validate() error {
	if c.PollInterval < minPollInterval {
		return fmt.Errorf("poll-interval %s is below the minimum %s", c.PollInterval, minPollInterval)
	}
	if c.RequestInterval <= 0 {
		return fmt.Errorf("request-interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must not be negative")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention-days must be positive")
	}
	if c.DigestTime != "" {
		if _, err := time.Parse("15:04", c.DigestTime); err != nil {
			return fmt.Errorf("digest-time %q is not HH:MM", c.DigestTime)
		}
	}
	return nil
}

// loadThresholds starts from the built-in defaults and applies any per-coin
// overrides from the config file, e.g. thresholds.btc.large-tx.
func loadThresholds(v *viper.Viper) model.Thresholds {
	thresholds := model.DefaultThresholds()
	for _, coin := range model.Coins() {
		key := "thresholds." + strings.ToLower(string(coin))
		entry := thresholds[coin]
		if sub := key + ".large-tx"; v.IsSet(sub) {
			entry.LargeTx = v.GetFloat64(sub)
		}
		if sub := key + ".usd"; v.IsSet(sub) {
			entry.USD = v.GetFloat64(sub)
		}
		thresholds[coin] = entry
	}
	return thresholds
}
