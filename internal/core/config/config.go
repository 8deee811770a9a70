package config

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Queue      QueueConfig      `yaml:"queue"`
	Retry      RetryConfig      `yaml:"retry"`
	Classifier ClassifierConfig `yaml:"classifier"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds delivery queue settings.
type QueueConfig struct {
	Workers        int `yaml:"workers"`
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// RetryConfig holds backoff policy settings. Durations are milliseconds,
// matching how windows are expressed throughout the config.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BaseDelayMs       int     `yaml:"base_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	RateLimitFloorMs  int     `yaml:"rate_limit_floor_ms"`
}

// ClassifierConfig holds the configurable phrase lists consulted by the
// error classifier after the built-in signal checks.
type ClassifierConfig struct {
	NonRetryable []string `yaml:"non_retryable"`
	RateLimit    []string `yaml:"rate_limit"`
	Retryable    []string `yaml:"retryable"`
}

// RateLimitConfig holds limiter settings shared across strategies.
type RateLimitConfig struct {
	SweepIntervalMs   int             `yaml:"sweep_interval_ms"`
	TrustForwardedFor bool            `yaml:"trust_forwarded_for"`
	Limiters          []LimiterConfig `yaml:"limiters"` // extra named limiters beyond the presets
}

// LimiterConfig declares one named limiter.
type LimiterConfig struct {
	Name        string `yaml:"name"`
	Strategy    string `yaml:"strategy"` // fixed_window, sliding_window, token_bucket
	Type        string `yaml:"type"`     // ip, email, global, user
	WindowMs    int    `yaml:"window_ms"`
	MaxRequests int    `yaml:"max_requests"`
}
