package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	Server    ServerConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Store     StoreConfig
	Analysis  AnalysisConfig
	Places    PlacesConfig
	Evaluator EvaluatorConfig
	Worker    WorkerConfig
	LLM       LLMConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type CORSConfig struct {
	Origins []string
}

type StoreConfig struct {
	Driver       string
	Path         string
	DynamoTable  string
	DynamoRegion string
}

type AnalysisConfig struct {
	URL     string
	Timeout time.Duration
}

type PlacesConfig struct {
	APIKey   string
	Radius   int
	MaxPages int
}

type EvaluatorConfig struct {
	Enabled  bool
	Schedule string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

// LLMConfig is read by the analysis server only.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Port    int
	Timeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "localhost"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
			Burst: getEnvInt("RATE_LIMIT_BURST", 20),
		},
		CORS: CORSConfig{
			Origins: getEnvList("CORS_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Driver:       getEnv("STORE_DRIVER", "sqlite"),
			Path:         getEnv("DB_PATH", "./data/perimeter-risk.db"),
			DynamoTable:  getEnv("DYNAMODB_TABLE", "perimeter-risk"),
			DynamoRegion: getEnv("AWS_REGION", "us-east-1"),
		},
		Analysis: AnalysisConfig{
			URL:     getEnv("ANALYSIS_URL", "http://localhost:8000"),
			Timeout: getEnvDuration("ANALYSIS_TIMEOUT", 30*time.Second),
		},
		Places: PlacesConfig{
			APIKey:   getEnv("MAPS_API_KEY", ""),
			Radius:   getEnvInt("PLACES_RADIUS", 200),
			MaxPages: getEnvInt("PLACES_MAX_PAGES", 1),
		},
		Evaluator: EvaluatorConfig{
			Enabled:  getEnvBool("EVALUATOR_ENABLED", false),
			Schedule: getEnv("EVALUATOR_SCHEDULE", "*/15 * * * *"),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("LLM_API_KEY", getEnv("SAMBANOVA_API_KEY", "")),
			BaseURL: getEnv("LLM_BASE_URL", "https://api.sambanova.ai/v1"),
			Model:   getEnv("LLM_MODEL", "Llama-4-Maverick-17B-128E-Instruct"),
			Port:    getEnvInt("ANALYSIS_PORT", 8000),
			Timeout: getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.LLM.Port < 1 || c.LLM.Port > 65535 {
		return fmt.Errorf("invalid analysis port: %d", c.LLM.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite store")
		}
	case "dynamodb":
		if c.Store.DynamoTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb store")
		}
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis timeout must be positive")
	}
	if c.Places.Radius < 1 || c.Places.Radius > 50000 {
		return fmt.Errorf("invalid places radius: %d", c.Places.Radius)
	}
	if c.Places.MaxPages < 1 || c.Places.MaxPages > 3 {
		return fmt.Errorf("places max pages must be between 1 and 3")
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}

	if c.Evaluator.Enabled {
		if _, err := cron.ParseStandard(c.Evaluator.Schedule); err != nil {
			return fmt.Errorf("invalid evaluator schedule %q: %w", c.Evaluator.Schedule, err)
		}
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
