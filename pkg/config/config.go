// Package config loads the application's layered configuration: a
// YAML file per environment, overridden by SCREENRADAR_-prefixed
// environment variables, via viper.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Name string `mapstructure:"name"`
		Env  string `mapstructure:"env"`
	} `mapstructure:"app"`

	DataSources struct {
		Tushare struct {
			APIKey  string        `mapstructure:"api_key"`
			BaseURL string        `mapstructure:"base_url"`
			Timeout time.Duration `mapstructure:"timeout"`
		} `mapstructure:"tushare"`
		News struct {
			Feeds      []string `mapstructure:"feeds"`
			ScrapeURLs []string `mapstructure:"scrape_urls"`
		} `mapstructure:"news"`
	} `mapstructure:"data_sources"`

	Database struct {
		TimescaleDB struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			DBName   string `mapstructure:"dbname"`
			SSLMode  string `mapstructure:"sslmode"`
		} `mapstructure:"timescaledb"`
	} `mapstructure:"database"`

	Redis struct {
		Addr        string        `mapstructure:"addr"`
		DB          int           `mapstructure:"db"`
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
	} `mapstructure:"redis"`

	NATS struct {
		URL       string `mapstructure:"url"`
		ClusterID string `mapstructure:"cluster_id"`
		ClientID  string `mapstructure:"client_id"`
	} `mapstructure:"nats"`

	API struct {
		Port         string        `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"api"`

	Scheduler struct {
		CadenceSeconds    int           `mapstructure:"cadence_seconds"`
		RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
		MaxParallelGroups int           `mapstructure:"max_parallel_groups"`
		FetchDeadline     time.Duration `mapstructure:"fetch_deadline"`
	} `mapstructure:"scheduler"`

	Compiler struct {
		DefaultLimit    int `mapstructure:"default_limit"`
		MaxNestingDepth int `mapstructure:"max_nesting_depth"`
	} `mapstructure:"compiler"`

	Validator struct {
		StrictMode bool `mapstructure:"strict_mode"`
	} `mapstructure:"validator"`

	LLM struct {
		APIURL    string `mapstructure:"api_url"`
		APIKey    string `mapstructure:"api_key"`
		ModelName string `mapstructure:"model_name"`
		Enabled   bool   `mapstructure:"enabled"`
	} `mapstructure:"llm"`

	Collector struct {
		Tickers      []string      `mapstructure:"tickers"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
		NewsInterval time.Duration `mapstructure:"news_interval"`
	} `mapstructure:"collector"`

	Notification struct {
		WebhookURL   string        `mapstructure:"webhook_url"`
		PollInterval time.Duration `mapstructure:"poll_interval"`
		DedupeTTL    time.Duration `mapstructure:"dedupe_ttl"`
	} `mapstructure:"notification"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "screenradar")
	v.SetDefault("app.env", "dev")
	v.SetDefault("scheduler.cadence_seconds", 60)
	v.SetDefault("scheduler.rate_limit_window", "24h")
	v.SetDefault("scheduler.max_parallel_groups", 32)
	v.SetDefault("scheduler.fetch_deadline", "10s")
	v.SetDefault("compiler.default_limit", 100)
	v.SetDefault("compiler.max_nesting_depth", 5)
	v.SetDefault("validator.strict_mode", true)
	v.SetDefault("api.port", "8080")
	v.SetDefault("collector.poll_interval", "30s")
	v.SetDefault("collector.news_interval", "5m")
	v.SetDefault("notification.poll_interval", "10s")
	v.SetDefault("notification.dedupe_ttl", "24h")
}

// Load reads configs/<env>/app.yaml (or an explicit path) and layers
// SCREENRADAR_-prefixed environment variables on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("SCREENRADAR")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// DefaultConfigPath selects configs/<env>/app.yaml from the
// SCREENRADAR_APP_ENV environment variable.
func DefaultConfigPath() string {
	env := os.Getenv("SCREENRADAR_APP_ENV")
	if env == "" {
		env = "dev"
	}
	return fmt.Sprintf("configs/%s/app.yaml", env)
}
