// Package config loads server settings from flags, environment variables and
// an optional .env file using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"go-content-push/internal/infrastructure/logger"
)

// Config holds all settings. Priority: flags > environment > .env file > defaults.
type Config struct {
	HTTPAddr          string
	UpdateMinInterval time.Duration
	UpdateMaxInterval time.Duration
	LongPollTimeout   time.Duration
	SSEKeepAlive      time.Duration
	ShutdownTimeout   time.Duration
	ImageBaseURL      string
	Messages          []string
	StaticDir         string
	MetricsEnabled    bool
	LogLevel          string
	LogFormat         string
	LogOutput         string
	LogFile           string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("HTTP_ADDR", "")
	v.SetDefault("UPDATE_MIN_INTERVAL", "5s")
	v.SetDefault("UPDATE_MAX_INTERVAL", "15s")
	v.SetDefault("LONG_POLL_TIMEOUT", "30s")
	v.SetDefault("SSE_KEEPALIVE_INTERVAL", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "5s")
	v.SetDefault("IMAGE_BASE_URL", "https://picsum.photos/400/300")
	v.SetDefault("CONTENT_MESSAGES", "")
	v.SetDefault("STATIC_DIR", "client")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("LOG_FILE", "")
}

// Load reads configuration. envFile is optional and silently ignored when
// missing; flags may be nil.
func Load(envFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // .env is optional
	}
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	return fromViper(v), nil
}

// bindFlags maps kebab-case flag names onto the env-style keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func fromViper(v *viper.Viper) *Config {
	addr := v.GetString("HTTP_ADDR")
	if addr == "" {
		addr = fmt.Sprintf(":%d", v.GetInt("PORT"))
	}

	return &Config{
		HTTPAddr:          addr,
		UpdateMinInterval: v.GetDuration("UPDATE_MIN_INTERVAL"),
		UpdateMaxInterval: v.GetDuration("UPDATE_MAX_INTERVAL"),
		LongPollTimeout:   v.GetDuration("LONG_POLL_TIMEOUT"),
		SSEKeepAlive:      v.GetDuration("SSE_KEEPALIVE_INTERVAL"),
		ShutdownTimeout:   v.GetDuration("SHUTDOWN_TIMEOUT"),
		ImageBaseURL:      v.GetString("IMAGE_BASE_URL"),
		Messages:          splitList(v.GetString("CONTENT_MESSAGES")),
		StaticDir:         v.GetString("STATIC_DIR"),
		MetricsEnabled:    v.GetBool("METRICS_ENABLED"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogFormat:         v.GetString("LOG_FORMAT"),
		LogOutput:         v.GetString("LOG_OUTPUT"),
		LogFile:           v.GetString("LOG_FILE"),
	}
}

// splitList parses a "|"-separated list; phrases may contain commas.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidationError describes the first invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return ValidationError{Field: "HTTP_ADDR", Message: "HTTP server address cannot be empty"}
	}
	if c.UpdateMinInterval <= 0 {
		return ValidationError{Field: "UPDATE_MIN_INTERVAL", Message: "must be positive"}
	}
	if c.UpdateMaxInterval < c.UpdateMinInterval {
		return ValidationError{
			Field:   "UPDATE_MAX_INTERVAL",
			Message: fmt.Sprintf("must be >= UPDATE_MIN_INTERVAL (%s), got %s", c.UpdateMinInterval, c.UpdateMaxInterval),
		}
	}
	if c.LongPollTimeout <= 0 {
		return ValidationError{Field: "LONG_POLL_TIMEOUT", Message: "must be positive"}
	}
	if c.SSEKeepAlive < 0 {
		return ValidationError{Field: "SSE_KEEPALIVE_INTERVAL", Message: "cannot be negative"}
	}
	if c.ShutdownTimeout <= 0 {
		return ValidationError{Field: "SHUTDOWN_TIMEOUT", Message: "must be positive"}
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return ValidationError{Field: "LOG_LEVEL", Message: err.Error()}
	}
	if c.LogOutput == "file" && c.LogFile == "" {
		return ValidationError{Field: "LOG_FILE", Message: "required when LOG_OUTPUT=file"}
	}
	return nil
}

// LoggerConfig translates the logging settings for logger.NewLogrusLogger.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.NewDefaultConfig()
	if lvl, err := logger.ParseLevel(c.LogLevel); err == nil {
		lc.Level = lvl
	}
	lc.Format = c.LogFormat
	lc.Output = c.LogOutput
	lc.FilePath = c.LogFile
	return lc
}
