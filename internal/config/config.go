package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Search   SearchConfig   `mapstructure:"search"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Output   OutputConfig   `mapstructure:"output"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// AgentConfig holds the automation-agent session settings
type AgentConfig struct {
	Host        string  `mapstructure:"host"`
	Port        int     `mapstructure:"port"`
	AppPackage  string  `mapstructure:"app_package"`
	AppActivity string  `mapstructure:"app_activity"`
	AssetsDir   string  `mapstructure:"assets_dir"`
	Timeout     int     `mapstructure:"timeout"`
	ImageMatch  float64 `mapstructure:"image_match_threshold"`
}

func (a AgentConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", a.Host, a.Port)
}

// SearchConfig holds the keyword list and UI pacing
type SearchConfig struct {
	WarmupKeyword  string   `mapstructure:"warmup_keyword"`
	Keywords       []string `mapstructure:"keywords"`
	SettleDelayMS  int      `mapstructure:"settle_delay_ms"`
	MaxPopupRounds int      `mapstructure:"max_popup_rounds"`
}

// CaptureConfig locates the proxy trace and the product API pattern
type CaptureConfig struct {
	TracePath   string `mapstructure:"trace_path"`
	URLFragment string `mapstructure:"url_fragment"`
	Method      string `mapstructure:"method"`
}

// RetryConfig is the policy for the resilient action executor
type RetryConfig struct {
	MaxAttempts       int `mapstructure:"max_attempts"`
	BaseDelayMS       int `mapstructure:"base_delay_ms"`
	MaxDelayMS        int `mapstructure:"max_delay_ms"`
	AttemptTimeoutSec int `mapstructure:"attempt_timeout_sec"`
}

// ReplayConfig controls API-level keyword replay after the warm-up search
type ReplayConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	MaxRequestsPerSecond int  `mapstructure:"max_requests_per_second"`
}

// OutputConfig holds the output document paths
type OutputConfig struct {
	CatalogPath string `mapstructure:"catalog_path"`
	SummaryPath string `mapstructure:"summary_path"`
}

// DatabaseConfig holds the optional postgres catalog sink
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// RedisConfig holds the optional run-progress store
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	Database int    `mapstructure:"database"`
	RunID    string `mapstructure:"run_id"`
}

// Load loads configuration from YAML file with environment variable overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("agent.host", "127.0.0.1")
	viper.SetDefault("agent.port", 4723)
	viper.SetDefault("agent.app_package", "com.pagoda.buy")
	viper.SetDefault("agent.app_activity", ".ui.MainActivity")
	viper.SetDefault("agent.assets_dir", "./assets")
	viper.SetDefault("agent.timeout", 30)
	viper.SetDefault("agent.image_match_threshold", 0.8)

	viper.SetDefault("search.warmup_keyword", "苹果")
	viper.SetDefault("search.keywords", []string{})
	viper.SetDefault("search.settle_delay_ms", 2000)
	viper.SetDefault("search.max_popup_rounds", 5)

	viper.SetDefault("capture.trace_path", "./data/traffic.jsonl")
	viper.SetDefault("capture.url_fragment", "searchGoods")
	viper.SetDefault("capture.method", "")

	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_delay_ms", 500)
	viper.SetDefault("retry.max_delay_ms", 5000)
	viper.SetDefault("retry.attempt_timeout_sec", 10)

	viper.SetDefault("replay.enabled", true)
	viper.SetDefault("replay.max_requests_per_second", 2)

	viper.SetDefault("output.catalog_path", "./data/products.json")
	viper.SetDefault("output.summary_path", "./data/run_summary.json")

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "pagoda")
	viper.SetDefault("database.user", "pagoda_user")
	viper.SetDefault("database.password", "pagoda_pass")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.run_id", "default")
}
