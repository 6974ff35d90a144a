package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment
// variables. It is built once at process start and passed explicitly into each
// collaborator constructor; nothing reads the environment after Load returns.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	NetworksFile  string `mapstructure:"networks_file"`
	NotifiersFile string `mapstructure:"notifiers_file"`

	DiscoverIntervalSeconds int64         `mapstructure:"discover_interval_seconds"`
	PublishIntervalSeconds  int64         `mapstructure:"publish_interval_seconds"`
	DiscoverInterval        time.Duration `mapstructure:"-"`
	PublishInterval         time.Duration `mapstructure:"-"`

	PublishBatchSize   int `mapstructure:"publish_batch_size"`
	PublishMaxAttempts int `mapstructure:"publish_max_attempts"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	AnalyticsEnabled bool   `mapstructure:"analytics_enabled"`
	AnalyticsDBPath  string `mapstructure:"analytics_db_path"`

	EnrichMedia bool `mapstructure:"enrich_media"`
	AutoApply   bool `mapstructure:"auto_apply"`

	HTTPAddr       string `mapstructure:"http_addr"`
	DashboardToken string `mapstructure:"dashboard_token"`

	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`

	DefaultPlatformsCSV string   `mapstructure:"default_platforms"`
	DefaultPlatforms    []string `mapstructure:"-"`
	DefaultMediaURL     string   `mapstructure:"default_media_url"`

	AwinAPIToken    string `mapstructure:"awin_api_token"`
	AwinPublisherID string `mapstructure:"awin_publisher_id"`

	RakutenWSToken       string `mapstructure:"rakuten_webservices_token"`
	RakutenSecurityToken string `mapstructure:"rakuten_security_token"`
	RakutenScopeID       string `mapstructure:"rakuten_scope_id"`

	PublerAPIKey    string `mapstructure:"publer_api_key"`
	PublerAccountID string `mapstructure:"publer_account_id"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "affiliate-autoposter")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("networks_file", "./configs/networks.yaml")
	v.SetDefault("notifiers_file", "./configs/notifiers.yaml")
	v.SetDefault("discover_interval_seconds", int64((2*time.Hour)/time.Second))
	v.SetDefault("publish_interval_seconds", int64((4*time.Hour)/time.Second))
	v.SetDefault("publish_batch_size", 5)
	v.SetDefault("publish_max_attempts", 0) // 0 keeps failing posts pending forever
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/posts.db")
	v.SetDefault("sqlite_path", "./data/posts.sqlite")
	v.SetDefault("analytics_enabled", false)
	v.SetDefault("analytics_db_path", "./data/analytics.sqlite")
	v.SetDefault("enrich_media", false)
	v.SetDefault("auto_apply", false)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("http_timeout_seconds", int64(20))
	v.SetDefault("default_platforms", "instagram,facebook,twitter,tiktok")
	v.SetDefault("default_media_url", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DiscoverIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid discover_interval_seconds (must be positive)")
	}
	if cfg.PublishIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid publish_interval_seconds (must be positive)")
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive)")
	}
	if cfg.PublishBatchSize <= 0 {
		return nil, fmt.Errorf("invalid publish_batch_size (must be positive)")
	}
	if cfg.PublishMaxAttempts < 0 {
		return nil, fmt.Errorf("invalid publish_max_attempts (must be >= 0)")
	}

	cfg.DiscoverInterval = time.Duration(cfg.DiscoverIntervalSeconds) * time.Second
	cfg.PublishInterval = time.Duration(cfg.PublishIntervalSeconds) * time.Second
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	cfg.DefaultPlatforms = splitCSV(cfg.DefaultPlatformsCSV)

	return &cfg, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
