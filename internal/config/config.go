package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Jobs      JobsConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string // "console" or "json"
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled      bool
	SubmitPerMin int
	PollPerMin   int
}

// WebhookConfig describes the downstream workflow engine
type WebhookConfig struct {
	BaseURL       string
	Path          string
	Workflows     map[string]string // workflow name -> path override
	Timeout       int               // seconds, per attempt
	DefaultMethod string
	AuthToken     string
	Headers       map[string]string
}

// JobsConfig holds the job orchestration policy
type JobsConfig struct {
	DedupWindowSecs     int
	RetryDelaySecs      int
	DeadlineSecs        int
	SpeakEverySecs      int
	MinPollIntervalSecs int
	MaxPolls            int
	NextPollAfterMs     int
	RetryNon2xx         bool
	Workers             int
	QueueSize           int
	MaxMessageChars     int
	ShutdownGraceSecs   int
}

// HTTPTimeout returns the per-attempt timeout as a duration
func (c WebhookConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// DedupWindow returns the dedup window as a duration
func (c JobsConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSecs) * time.Second
}

// RetryDelay returns the pause between placeholder/transient attempts
func (c JobsConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySecs) * time.Second
}

// Deadline returns the overall resolution deadline of one job
func (c JobsConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineSecs) * time.Second
}

// ShutdownGrace returns how long in-flight workers get on shutdown
func (c JobsConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSecs) * time.Second
}

func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith builds a Config from the given viper instance
func LoadWith(v *viper.Viper) (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("WEBHOOK_AUTH_TOKEN")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.enabled", "RATELIMIT_ENABLED")
	_ = v.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")
	_ = v.BindEnv("ratelimit.poll_per_min", "RATELIMIT_POLL_PER_MIN")
	_ = v.BindEnv("webhook.base_url", "N8N_BASE_URL")
	_ = v.BindEnv("webhook.path", "N8N_WEBHOOK_PATH")
	_ = v.BindEnv("webhook.timeout", "WEBHOOK_TIMEOUT")
	_ = v.BindEnv("webhook.default_method", "WEBHOOK_METHOD")
	_ = v.BindEnv("webhook.auth_token", "WEBHOOK_AUTH_TOKEN")
	_ = v.BindEnv("jobs.dedup_window_secs", "JOBS_DEDUP_WINDOW_SECS")
	_ = v.BindEnv("jobs.retry_delay_secs", "JOBS_RETRY_DELAY_SECS")
	_ = v.BindEnv("jobs.deadline_secs", "JOBS_DEADLINE_SECS")
	_ = v.BindEnv("jobs.speak_every_secs", "JOBS_SPEAK_EVERY_SECS")
	_ = v.BindEnv("jobs.min_poll_interval_secs", "JOBS_MIN_POLL_INTERVAL_SECS")
	_ = v.BindEnv("jobs.max_polls", "JOBS_MAX_POLLS")
	_ = v.BindEnv("jobs.next_poll_after_ms", "JOBS_NEXT_POLL_AFTER_MS")
	_ = v.BindEnv("jobs.retry_non_2xx", "JOBS_RETRY_NON_2XX")
	_ = v.BindEnv("jobs.workers", "JOBS_WORKERS")
	_ = v.BindEnv("jobs.queue_size", "JOBS_QUEUE_SIZE")
	_ = v.BindEnv("jobs.max_message_chars", "JOBS_MAX_MESSAGE_CHARS")
	_ = v.BindEnv("jobs.shutdown_grace_secs", "JOBS_SHUTDOWN_GRACE_SECS")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.submit_per_min", 30)
	v.SetDefault("ratelimit.poll_per_min", 600)

	// Webhook defaults
	v.SetDefault("webhook.base_url", "")
	v.SetDefault("webhook.path", "")
	v.SetDefault("webhook.timeout", 40)
	v.SetDefault("webhook.default_method", "POST")

	// Job policy defaults
	v.SetDefault("jobs.dedup_window_secs", 30)
	v.SetDefault("jobs.retry_delay_secs", 2)
	v.SetDefault("jobs.deadline_secs", 60)
	v.SetDefault("jobs.speak_every_secs", 6)
	v.SetDefault("jobs.min_poll_interval_secs", 6)
	v.SetDefault("jobs.max_polls", 20)
	v.SetDefault("jobs.next_poll_after_ms", 2000)
	v.SetDefault("jobs.retry_non_2xx", false)
	v.SetDefault("jobs.workers", 32)
	v.SetDefault("jobs.queue_size", 256)
	v.SetDefault("jobs.max_message_chars", 900)
	v.SetDefault("jobs.shutdown_grace_secs", 10)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			Enabled:      v.GetBool("ratelimit.enabled"),
			SubmitPerMin: v.GetInt("ratelimit.submit_per_min"),
			PollPerMin:   v.GetInt("ratelimit.poll_per_min"),
		},
		Webhook: WebhookConfig{
			BaseURL:       v.GetString("webhook.base_url"),
			Path:          v.GetString("webhook.path"),
			Workflows:     v.GetStringMapString("webhook.workflows"),
			Timeout:       v.GetInt("webhook.timeout"),
			DefaultMethod: strings.ToUpper(v.GetString("webhook.default_method")),
			AuthToken:     v.GetString("webhook.auth_token"),
			Headers:       v.GetStringMapString("webhook.headers"),
		},
		Jobs: JobsConfig{
			DedupWindowSecs:     v.GetInt("jobs.dedup_window_secs"),
			RetryDelaySecs:      v.GetInt("jobs.retry_delay_secs"),
			DeadlineSecs:        v.GetInt("jobs.deadline_secs"),
			SpeakEverySecs:      v.GetInt("jobs.speak_every_secs"),
			MinPollIntervalSecs: v.GetInt("jobs.min_poll_interval_secs"),
			MaxPolls:            v.GetInt("jobs.max_polls"),
			NextPollAfterMs:     v.GetInt("jobs.next_poll_after_ms"),
			RetryNon2xx:         v.GetBool("jobs.retry_non_2xx"),
			Workers:             v.GetInt("jobs.workers"),
			QueueSize:           v.GetInt("jobs.queue_size"),
			MaxMessageChars:     v.GetInt("jobs.max_message_chars"),
			ShutdownGraceSecs:   v.GetInt("jobs.shutdown_grace_secs"),
		},
	}

	return cfg, nil
}
