// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Courses CoursesConfig `mapstructure:"courses"`
	Output  OutputConfig  `mapstructure:"output"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// SourceConfig describes the racecard site and crawl fan-out.
type SourceConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	UserAgent       string   `mapstructure:"user_agent"`
	MaxConnections  int      `mapstructure:"max_connections"`
	RaceWorkers     int      `mapstructure:"race_workers"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	ExcludedCourses []string `mapstructure:"excluded_courses"`
	Timezone        string   `mapstructure:"timezone"`
}

// HTTPConfig configures HTTP client retry and politeness behavior.
type HTTPConfig struct {
	MaxRetries        int     `mapstructure:"max_retries"`
	BackoffInitialMs  int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs      int     `mapstructure:"backoff_max_ms"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// CoursesConfig points at the course to region table.
type CoursesConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig selects where snapshots are written. A bucket selects GCS,
// otherwise Dir is used.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional race index in Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig configures the Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig selects an OTLP collector for run spans. With neither
// endpoint set, trace context is only propagated to Pub/Sub.
type TracingConfig struct {
	OTLPHTTPEndpoint string            `mapstructure:"otlp_http_endpoint"`
	OTLPGRPCEndpoint string            `mapstructure:"otlp_grpc_endpoint"`
	Headers          map[string]string `mapstructure:"headers"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RACECARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.racingpost.com")
	v.SetDefault("source.user_agent", "Mozilla/5.0")
	v.SetDefault("source.max_connections", 30)
	v.SetDefault("source.race_workers", 4)
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.excluded_courses", []string{"free to air", "worldwide stakes", "(arab)"})
	v.SetDefault("source.timezone", "Europe/London")
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("courses.path", "courses/_courses")
	v.SetDefault("output.dir", "racecards")
	v.SetDefault("db.table", "racecard_races")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("metrics.job", "racecards")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Source.MaxConnections <= 0 {
		return fmt.Errorf("source.max_connections must be > 0")
	}
	if c.Source.RaceWorkers <= 0 {
		return fmt.Errorf("source.race_workers must be > 0")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Courses.Path == "" {
		return fmt.Errorf("courses.path must be set")
	}
	if c.Output.Dir == "" && c.Output.GCSBucket == "" {
		return fmt.Errorf("output.dir or output.gcs_bucket must be set")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// FetchTimeout is the per-request budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (initial, maxDelay time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
