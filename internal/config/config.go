package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Oracle  OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Motion  MotionConfig  `mapstructure:"motion" yaml:"motion"`
	// Run gets its marching orders from CLI flags, not the config file.
	Run RunConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool     `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	VideoQuality    string   `mapstructure:"video_quality" yaml:"video_quality"`
}

// VideoSize returns the screencast frame bounds for the configured quality.
func (b BrowserConfig) VideoSize() (width, height int64) {
	switch b.VideoQuality {
	case "low":
		return 800, 600
	case "high":
		return 1920, 1080
	default:
		return 1280, 720
	}
}

// NetworkConfig tunes page-load waiting behavior.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleQuietPeriod   time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionSettleWait  time.Duration `mapstructure:"action_settle_wait" yaml:"action_settle_wait"`
}

// OracleConfig configures the decision backend.
type OracleConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// AgentConfig holds settings for the decision loop itself.
type AgentConfig struct {
	MaxSteps       int     `mapstructure:"max_steps" yaml:"max_steps"`
	GoalConfidence float64 `mapstructure:"goal_confidence" yaml:"goal_confidence"`
	HistoryWindow  int     `mapstructure:"history_window" yaml:"history_window"`
	MaxElements    int     `mapstructure:"max_elements" yaml:"max_elements"`
}

// MotionConfig tunes the humanized mouse and keyboard timing.
type MotionConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	PathSteps     int  `mapstructure:"path_steps" yaml:"path_steps"`
	StepDelayMin  int  `mapstructure:"step_delay_min_ms" yaml:"step_delay_min_ms"`
	StepDelayMax  int  `mapstructure:"step_delay_max_ms" yaml:"step_delay_max_ms"`
	KeyDelayMin   int  `mapstructure:"key_delay_min_ms" yaml:"key_delay_min_ms"`
	KeyDelayMax   int  `mapstructure:"key_delay_max_ms" yaml:"key_delay_max_ms"`
	ControlJitter int  `mapstructure:"control_jitter_px" yaml:"control_jitter_px"`
}

// RunConfig holds settings populated from CLI flags for a specific run.
type RunConfig struct {
	URL       string
	Goal      string
	OutputDir string
}

// NewDefaultConfig creates a configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "bugninja")
	v.SetDefault("logger.log_file", "bugninja.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)
	v.SetDefault("browser.video_quality", "medium")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "30s")
	v.SetDefault("network.idle_quiet_period", "500ms")
	v.SetDefault("network.post_load_wait", "1s")
	v.SetDefault("network.action_settle_wait", "2s")

	// -- Oracle --
	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.model", "gemini-2.0-flash")
	v.SetDefault("oracle.api_timeout", "60s")
	v.SetDefault("oracle.temperature", 0.1)
	v.SetDefault("oracle.max_retries", 3)

	// -- Agent --
	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.goal_confidence", 0.8)
	v.SetDefault("agent.history_window", 5)
	v.SetDefault("agent.max_elements", 60)

	// -- Motion --
	v.SetDefault("motion.enabled", true)
	v.SetDefault("motion.path_steps", 10)
	v.SetDefault("motion.step_delay_min_ms", 10)
	v.SetDefault("motion.step_delay_max_ms", 30)
	v.SetDefault("motion.key_delay_min_ms", 50)
	v.SetDefault("motion.key_delay_max_ms", 150)
	v.SetDefault("motion.control_jitter_px", 50)
}

// Validate rejects configurations that cannot drive a run.
func (c *Config) Validate() error {
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be at least 1, got %d", c.Agent.MaxSteps)
	}
	if c.Agent.GoalConfidence < 0 || c.Agent.GoalConfidence > 1 {
		return fmt.Errorf("agent.goal_confidence must be in [0,1], got %g", c.Agent.GoalConfidence)
	}
	switch c.Browser.VideoQuality {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("browser.video_quality must be low, medium or high, got %q", c.Browser.VideoQuality)
	}
	if c.Agent.HistoryWindow < 3 || c.Agent.HistoryWindow > 5 {
		return fmt.Errorf("agent.history_window must be between 3 and 5, got %d", c.Agent.HistoryWindow)
	}
	return nil
}
