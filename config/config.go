// config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config mirrors config.yaml; every key can be overridden from the
// environment with dots replaced by underscores (database.url -> DATABASE_URL).
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	R2        R2Config        `mapstructure:"r2"`
	Rewards   RewardsConfig   `mapstructure:"rewards"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	GatewayToken   string   `mapstructure:"gateway_token"`
	AuthServiceURL string   `mapstructure:"auth_service_url"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	LogLevel string `mapstructure:"log_level"` // silent | error | warn | info
}

// RedisConfig is optional: an empty address disables Redis-backed features
// (leaderboard cache, tracker state falls back to memory).
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type R2Config struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	CDNBaseURL      string `mapstructure:"cdn_base_url"`
}

// Enabled reports whether badge uploads can be served.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != ""
}

// RewardsConfig holds the catalog-coupled constants of the reconciliation rules.
type RewardsConfig struct {
	MilestoneLevels    []int    `mapstructure:"milestone_levels"`
	PerfectScoreTotal  int      `mapstructure:"perfect_score_total"`
	PerfectRequirement int      `mapstructure:"perfect_requirement"`
	IncrementTypes     []string `mapstructure:"increment_types"`
	MaxCASAttempts     int      `mapstructure:"max_cas_attempts"`
}

type SyncConfig struct {
	ProfileServiceURL string        `mapstructure:"profile_service_url"`
	ProfilesPath      string        `mapstructure:"profiles_path"`
	ServiceToken      string        `mapstructure:"service_token"`
	Interval          time.Duration `mapstructure:"interval"`
}

type SchedulerConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SweepConcurrency int           `mapstructure:"sweep_concurrency"`
}

var defaults = map[string]any{
	"server.address":              ":5200",
	"server.allowed_origins":      []string{"http://localhost:3000"},
	"server.gateway_token":        "",
	"server.auth_service_url":     "",
	"database.url":                "",
	"database.log_level":          "warn",
	"redis.address":               "",
	"redis.password":              "",
	"redis.db":                    0,
	"r2.account_id":               "",
	"r2.access_key_id":            "",
	"r2.access_key_secret":        "",
	"r2.bucket":                   "",
	"r2.cdn_base_url":             "",
	"rewards.milestone_levels":    []int{1, 3, 10},
	"rewards.perfect_score_total": 1000,
	"rewards.perfect_requirement": 100,
	"rewards.increment_types":     []string{"daily", "global"},
	"rewards.max_cas_attempts":    5,
	"sync.profile_service_url":    "",
	"sync.profiles_path":          "/api/v1/public/profiles",
	"sync.service_token":          "",
	"sync.interval":               time.Minute,
	"scheduler.sweep_interval":    5 * time.Minute,
	"scheduler.sweep_concurrency": 4,
}

// Load reads config.yaml from ./config or the working directory when present,
// then applies environment overrides. The file is optional.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// Env lookups only resolve keys viper already knows, so every key gets a default.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url (DATABASE_URL) is required")
	}
	if c.Server.GatewayToken == "" {
		return errors.New("server.gateway_token (SERVER_GATEWAY_TOKEN) is required")
	}
	if c.Rewards.MaxCASAttempts < 1 {
		return fmt.Errorf("rewards.max_cas_attempts must be >= 1, got %d", c.Rewards.MaxCASAttempts)
	}
	for _, t := range c.Rewards.IncrementTypes {
		if t != "daily" && t != "global" {
			return fmt.Errorf("rewards.increment_types: unknown reward type %q", t)
		}
	}
	return nil
}
