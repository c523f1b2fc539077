package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config carries every tunable the services need. It is loaded once in main
// and passed into each constructor; nothing else reads viper or the
// environment directly.
type Config struct {
	Environment string

	Server struct {
		Port            string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		OutboundTimeout time.Duration
	}

	Redis struct {
		Addr string
	}

	SQLite struct {
		Path string
	}

	Geocoding struct {
		APIURL             string
		ReverseFallbackURL string
	}

	Weather struct {
		APIURL        string
		CacheDuration time.Duration
	}

	Gemini struct {
		APIURL        string
		Model         string
		APIKey        string
		CacheDuration time.Duration
	}

	RateLimiter RateLimiterConfig
}

// RateLimiterConfig holds the request throttling knobs. Rates are requests
// per minute.
type RateLimiterConfig struct {
	CleanupTimeout time.Duration
	GlobalRate     float64
	GlobalBurst    int
	ParamRate      float64
	ParamBurst     int
}

// IsProduction reports whether the service runs with the production
// environment flag, which disables location usage-count writes.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// isTestRun returns true if the current process is a Go test binary.
func isTestRun() bool {
	return flag.Lookup("test.v") != nil || filepath.Ext(os.Args[0]) == ".test"
}

func getProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// Load reads config.yaml from the project root (merging config_test.yaml when
// running under `go test`), pulls secrets from the environment via godotenv,
// and returns the assembled Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("config")

	root, err := getProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("config: cannot find project root: %w", err)
	}
	v.AddConfigPath(root)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if isTestRun() {
		v.SetConfigName("config_test")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: merging test config: %w", err)
		}
	}

	_ = godotenv.Load(filepath.Join(root, ".env"))

	cfg := &Config{}
	cfg.Environment = withDefault(v.GetString("environment"), "local")

	cfg.Server.Port = withDefault(v.GetString("server.port"), "8080")
	cfg.Server.ReadTimeout = durationOr(v.GetString("server.read_timeout"), 10*time.Second)
	cfg.Server.WriteTimeout = durationOr(v.GetString("server.write_timeout"), 30*time.Second)
	cfg.Server.OutboundTimeout = durationOr(v.GetString("server.outbound_timeout"), 10*time.Second)

	cfg.Redis.Addr = withDefault(v.GetString("redis.addr"), "localhost:6379")
	cfg.SQLite.Path = withDefault(v.GetString("sqlite.path"), "weather-agent.db")

	cfg.Geocoding.APIURL = withDefault(v.GetString("geocoding.api_url"), "https://geocoding-api.open-meteo.com/v1")
	cfg.Geocoding.ReverseFallbackURL = withDefault(v.GetString("geocoding.reverse_fallback_url"), "https://api.bigdatacloud.net/data/reverse-geocode-client")

	cfg.Weather.APIURL = withDefault(v.GetString("openmeteo.api_url"), "https://api.open-meteo.com/v1")
	cfg.Weather.CacheDuration = minutesOr(v.GetInt("openmeteo.cache_duration"), 30*time.Minute)

	cfg.Gemini.APIURL = withDefault(v.GetString("gemini.api_url"), "https://generativelanguage.googleapis.com/v1beta")
	cfg.Gemini.Model = withDefault(v.GetString("gemini.model"), "gemini-2.0-flash")
	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	cfg.Gemini.CacheDuration = minutesOr(v.GetInt("gemini.cache_duration"), 60*time.Minute)

	cfg.RateLimiter.CleanupTimeout = durationOr(v.GetString("rate_limiter.cleanup_timeout"), 3*time.Minute)
	cfg.RateLimiter.GlobalRate = floatOr(v.GetFloat64("rate_limiter.global.rate"), 10)
	cfg.RateLimiter.GlobalBurst = intOr(v.GetInt("rate_limiter.global.burst"), 10)
	cfg.RateLimiter.ParamRate = floatOr(v.GetFloat64("rate_limiter.param.rate"), 2)
	cfg.RateLimiter.ParamBurst = intOr(v.GetInt("rate_limiter.param.burst"), 2)

	return cfg, nil
}

func withDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func durationOr(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return dur
}

func minutesOr(minutes int, def time.Duration) time.Duration {
	if minutes <= 0 {
		return def
	}
	return time.Duration(minutes) * time.Minute
}

func floatOr(val, def float64) float64 {
	if val == 0 {
		return def
	}
	return val
}

func intOr(val, def int) int {
	if val == 0 {
		return def
	}
	return val
}

// NewLogger builds the application logger.
func NewLogger() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}
