package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	SalesFile string `envconfig:"SALES_FILE" default:"data/sales_data.csv"`

	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `envconfig:"DATABASE_DSN" default:"sales.db"`

	CustomerAPIURL    string `envconfig:"CUSTOMER_API_URL" default:"https://jsonplaceholder.typicode.com"`
	CustomerBulkFetch bool   `envconfig:"CUSTOMER_BULK_FETCH" default:"true"`

	// Weather enrichment is enabled by setting WEATHER_API_KEY unless
	// WEATHER_ENABLED says otherwise.
	WeatherAPIURL    string        `envconfig:"WEATHER_API_URL" default:"https://api.openweathermap.org/data/2.5"`
	WeatherAPIKey    string        `envconfig:"WEATHER_API_KEY"`
	WeatherEnabled   bool          `ignored:"true"`
	WeatherCacheSize int           `envconfig:"WEATHER_CACHE_SIZE" default:"1000"`
	WeatherCacheTTL  time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"10m"`

	LookupTimeout     time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"5s"`
	LookupConcurrency int           `envconfig:"LOOKUP_CONCURRENCY" default:"8"`

	CompanyResolution string        `envconfig:"COMPANY_RESOLUTION" default:"null"`
	LoadBatchSize     int           `envconfig:"LOAD_BATCH_SIZE" default:"500"`
	RunInterval       time.Duration `envconfig:"RUN_INTERVAL" default:"0s"`

	KafkaEnabled       bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaEnrichedTopic string   `envconfig:"KAFKA_ENRICHED_TOPIC" default:"enriched-sales"`
	KafkaReportTopic   string   `envconfig:"KAFKA_REPORT_TOPIC" default:"sales-etl-runs"`

	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// weatherFlag is decoded separately so an unset variable can be told apart
// from an explicit "false".
type weatherFlag struct {
	Enabled string `envconfig:"WEATHER_ENABLED"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}

	var flag weatherFlag
	if err := envconfig.Process("", &flag); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}
	cfg.WeatherEnabled = cfg.WeatherAPIKey != ""
	if flag.Enabled != "" {
		enabled, err := strconv.ParseBool(flag.Enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid WEATHER_ENABLED %q", flag.Enabled)
		}
		cfg.WeatherEnabled = enabled
	}

	cfg.KafkaBrokers = cleanList(cfg.KafkaBrokers)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER %q (want sqlite or postgres)", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if c.SalesFile == "" {
		return errors.New("SALES_FILE is required")
	}
	if c.WeatherEnabled && c.WeatherAPIKey == "" {
		return errors.New("WEATHER_ENABLED is true but WEATHER_API_KEY is not set")
	}
	if c.WeatherCacheSize <= 0 {
		return errors.New("WEATHER_CACHE_SIZE must be positive")
	}
	if c.WeatherCacheTTL < 0 {
		return errors.New("WEATHER_CACHE_TTL must not be negative")
	}
	if c.LookupTimeout <= 0 {
		return errors.New("invalid LOOKUP_TIMEOUT")
	}
	if c.LookupConcurrency <= 0 {
		return errors.New("LOOKUP_CONCURRENCY must be positive")
	}
	switch c.CompanyResolution {
	case "null", "skip":
	default:
		return fmt.Errorf("invalid COMPANY_RESOLUTION %q (want null or skip)", c.CompanyResolution)
	}
	if c.LoadBatchSize <= 0 {
		return errors.New("LOAD_BATCH_SIZE must be positive")
	}
	if c.RunInterval < 0 {
		return errors.New("RUN_INTERVAL must not be negative")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if c.KafkaEnrichedTopic == "" || c.KafkaReportTopic == "" {
			return errors.New("KAFKA_ENRICHED_TOPIC and KAFKA_REPORT_TOPIC are required when KAFKA_ENABLED is true")
		}
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("invalid SHUTDOWN_TIMEOUT")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
