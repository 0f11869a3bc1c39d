package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/erp/cashflow/internal/domain/forecast"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Swagger   SwaggerConfig   `mapstructure:"swagger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Profiler  ProfilerConfig  `mapstructure:"profiler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Forecast  ForecastConfig  `mapstructure:"forecast"`
	Report    ReportConfig    `mapstructure:"report"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string `mapstructure:"level"`     // debug, info, warn, error
	Format   string `mapstructure:"format"`    // json, console
	Output   string `mapstructure:"output"`    // stdout, stderr, or file path
	GormMode string `mapstructure:"gorm_mode"` // silent, error, warn, info
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // in minutes
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"` // pub/sub channel for model activations
}

// JWTConfig holds service token settings
type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	TokenExpiration time.Duration `mapstructure:"token_expiration"`
}

// AuthConfig maps API client IDs to bcrypt hashes of their secrets
type AuthConfig struct {
	Clients map[string]string `mapstructure:"clients"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`
	MaxBodySize       int64         `mapstructure:"max_body_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods  []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders  []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
}

// SchedulerConfig holds training job pool configuration
type SchedulerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	QueueSize         int           `mapstructure:"queue_size"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	JobRetention      time.Duration `mapstructure:"job_retention"` // finished jobs stay pollable this long
}

// SwaggerConfig guards the API docs endpoint. An empty AllowedIPs allows
// every address.
type SwaggerConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	RequireAuth bool     `mapstructure:"require_auth"`
	AllowedIPs  []string `mapstructure:"allowed_ips"`
}

// TelemetryConfig holds the OTLP exporters. Insecure disables TLS towards
// the collector and is meant for local stacks.
type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // host:port of the gRPC receiver
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"` // defaults to app.name
	Insecure          bool          `mapstructure:"insecure"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`
	LogsLevel         string        `mapstructure:"logs_level"`
	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"` // statement text in spans; refused in production
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`
}

// ProfilerConfig holds Pyroscope continuous profiling configuration
type ProfilerConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	ServerAddress     string   `mapstructure:"server_address"`
	ApplicationName   string   `mapstructure:"application_name"`
	BasicAuthUser     string   `mapstructure:"basic_auth_user"`
	BasicAuthPassword string   `mapstructure:"basic_auth_password"`
	SpanProfiles      bool     `mapstructure:"span_profiles"` // link profiles to trace spans
	Profiles          []string `mapstructure:"profiles"`      // cpu, alloc, inuse, goroutines, mutex, block
}

// StorageConfig selects where trained model artifacts live
type StorageConfig struct {
	ArtifactBackend string `mapstructure:"artifact_backend"` // filesystem, s3 or memory
	ArtifactDir     string `mapstructure:"artifact_dir"`
	S3Bucket        string `mapstructure:"s3_bucket"`
	S3Region        string `mapstructure:"s3_region"`
	S3Endpoint      string `mapstructure:"s3_endpoint"` // MinIO or other S3-compatible endpoint
	S3AccessKey     string `mapstructure:"s3_access_key"`
	S3SecretKey     string `mapstructure:"s3_secret_key"`
	S3PathStyle     bool   `mapstructure:"s3_path_style"`
}

// ForecastConfig holds model training and serving parameters
type ForecastConfig struct {
	MinTrainingInvoices int           `mapstructure:"min_training_invoices"`
	MinHistoryDays      int           `mapstructure:"min_history_days"`
	ValidationDays      int           `mapstructure:"validation_days"`
	TestFraction        float64       `mapstructure:"test_fraction"`
	RandomSeed          uint64        `mapstructure:"random_seed"`
	NumTrees            int           `mapstructure:"num_trees"`
	MaxDepth            int           `mapstructure:"max_depth"`
	LearningRate        float64       `mapstructure:"learning_rate"`
	BatchConcurrency    int           `mapstructure:"batch_concurrency"`
	RetrainInterval     time.Duration `mapstructure:"retrain_interval"` // 0 disables periodic retraining
}

// ReportConfig holds PDF report rendering settings
type ReportConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ChromeTimeout time.Duration `mapstructure:"chrome_timeout"`
	ChromeURL     string        `mapstructure:"chrome_url"` // remote DevTools endpoint; empty launches a local browser
	NoSandbox     bool          `mapstructure:"no_sandbox"` // required when Chrome runs as root in a container
	MaxTabs       int           `mapstructure:"max_tabs"`   // concurrent renders in the shared browser
	Locale        string        `mapstructure:"locale"`     // BCP 47 tag for number formatting and paper size
}

// Load reads config.toml (from ".", "./config" or "/etc/cashflow") and
// CASHFLOW_-prefixed environment variables over the built-in defaults.
// CASHFLOW_DATABASE_PASSWORD overrides database.password.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cashflow")

	v.SetEnvPrefix("CASHFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.inherit()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaults lists every key, so AutomaticEnv can override keys that have no
// value in config.toml.
var defaults = map[string]map[string]any{
	"app": {
		"name": "cashflow-forecast",
		"env":  "development",
		"port": "8080",
	},
	"database": {
		"host":               "localhost",
		"port":               5432,
		"user":               "postgres",
		"password":           "",
		"dbname":             "cashflow",
		"sslmode":            "disable",
		"max_open_conns":     25,
		"max_idle_conns":     5,
		"conn_max_lifetime":  60,
		"conn_max_idle_time": 30,
	},
	"redis": {
		"enabled":  false,
		"host":     "localhost",
		"port":     6379,
		"password": "",
		"db":       0,
		"channel":  "cashflow:model-activations",
	},
	"jwt": {
		"secret":           "",
		"issuer":           "cashflow-forecast",
		"token_expiration": time.Hour,
	},
	"auth": {
		"clients": map[string]string{},
	},
	"log": {
		"level":     "info",
		"format":    "console",
		"output":    "stdout",
		"gorm_mode": "warn",
	},
	"http": {
		"read_timeout":        15 * time.Second,
		"write_timeout":       60 * time.Second, // batch predictions and PDF rendering
		"idle_timeout":        60 * time.Second,
		"max_header_bytes":    1 << 20,
		"max_body_size":       2 << 20,
		"rate_limit_enabled":  false,
		"rate_limit_requests": 100,
		"rate_limit_window":   time.Minute,
		"rate_limit_burst":    20,
		"cors_allow_origins":  []string{},
		"cors_allow_methods":  []string{"GET", "POST", "DELETE", "OPTIONS"},
		"cors_allow_headers":  []string{"Content-Type", "Authorization", "X-Request-ID"},
		"trusted_proxies":     []string{},
	},
	"scheduler": {
		"enabled":             false,
		"max_concurrent_jobs": 2,
		"queue_size":          16,
		"job_timeout":         30 * time.Minute,
		"job_retention":       24 * time.Hour,
	},
	"swagger": {
		"enabled":      false,
		"require_auth": false,
		"allowed_ips":  []string{},
	},
	"telemetry": {
		"enabled":                 false,
		"collector_endpoint":      "localhost:4317",
		"sampling_ratio":          1.0,
		"service_name":            "",
		"insecure":                false,
		"metrics_enabled":         false,
		"metrics_interval":        time.Minute,
		"logs_enabled":            false,
		"logs_level":              "info",
		"db_trace_enabled":        false,
		"db_log_full_sql":         false,
		"db_slow_query_threshold": 200 * time.Millisecond,
	},
	"profiler": {
		"enabled":             false,
		"server_address":      "http://localhost:4040",
		"application_name":    "",
		"basic_auth_user":     "",
		"basic_auth_password": "",
		"span_profiles":       false,
		"profiles":            []string{"cpu", "alloc", "inuse", "goroutines"},
	},
	"storage": {
		"artifact_backend": "filesystem",
		"artifact_dir":     "./models",
		"s3_bucket":        "",
		"s3_region":        "us-east-1",
		"s3_endpoint":      "",
		"s3_access_key":    "",
		"s3_secret_key":    "",
		"s3_path_style":    false,
	},
	"forecast": {
		"min_training_invoices": 50,
		"min_history_days":      60,
		"validation_days":       30,
		"test_fraction":         0.2,
		"random_seed":           42,
		"num_trees":             100,
		"max_depth":             6,
		"learning_rate":         0.1,
		"batch_concurrency":     8,
		"retrain_interval":      time.Duration(0),
	},
	"report": {
		"enabled":        false,
		"chrome_timeout": 30 * time.Second,
		"chrome_url":     "",
		"no_sandbox":     false,
		"max_tabs":       2,
		"locale":         "en-US",
	},
}

func setDefaults(v *viper.Viper) {
	for section, keys := range defaults {
		for key, value := range keys {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// inherit fills names that default to the application name
func (c *Config) inherit() {
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.App.Name
	}
	if c.Profiler.ApplicationName == "" {
		c.Profiler.ApplicationName = c.App.Name
	}
	if c.Auth.Clients == nil {
		c.Auth.Clients = map[string]string{}
	}
}

func (c *Config) validate() error {
	if err := errors.Join(
		c.Database.validate(),
		c.Telemetry.validate(),
		c.Storage.validate(),
		c.Forecast.validate(),
	); err != nil {
		return err
	}
	if c.App.Env == "production" {
		return c.validateProduction()
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch {
	case d.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case d.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case d.MaxIdleConns > d.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			d.MaxIdleConns, d.MaxOpenConns)
	}
	return nil
}

func (t TelemetryConfig) validate() error {
	if t.SamplingRatio < 0 || t.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %g", t.SamplingRatio)
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.ArtifactBackend {
	case "filesystem", "memory":
		return nil
	case "s3":
		if s.S3Bucket == "" {
			return errors.New("storage.s3_bucket is required when storage.artifact_backend is s3")
		}
		return nil
	}
	return fmt.Errorf("storage.artifact_backend must be filesystem, s3 or memory, got %q", s.ArtifactBackend)
}

func (f ForecastConfig) validate() error {
	var errs []error
	if f.TestFraction <= 0 || f.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("forecast.test_fraction must be between 0 and 1 exclusive, got %g", f.TestFraction))
	}
	if f.MinTrainingInvoices < 2 {
		errs = append(errs, errors.New("forecast.min_training_invoices must be at least 2"))
	}
	if f.ValidationDays >= f.MinHistoryDays {
		errs = append(errs, fmt.Errorf("forecast.validation_days (%d) must be less than forecast.min_history_days (%d)",
			f.ValidationDays, f.MinHistoryDays))
	}
	if f.NumTrees < 1 || f.MaxDepth < 1 {
		errs = append(errs, errors.New("forecast.num_trees and forecast.max_depth must be positive"))
	}
	if f.LearningRate <= 0 || f.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("forecast.learning_rate must be in (0, 1], got %g", f.LearningRate))
	}
	if f.BatchConcurrency < 1 {
		errs = append(errs, errors.New("forecast.batch_concurrency must be positive"))
	}
	if f.RetrainInterval < 0 {
		errs = append(errs, errors.New("forecast.retrain_interval cannot be negative"))
	}
	return errors.Join(errs...)
}

// validateProduction rejects settings that leak data or skip authentication
func (c *Config) validateProduction() error {
	switch {
	case c.JWT.Secret == "":
		return errors.New("jwt.secret is required in production")
	case len(c.JWT.Secret) < 32:
		return errors.New("jwt.secret must be at least 32 characters in production")
	case c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be 'disable' in production")
	case slices.Contains(c.HTTP.CORSAllowOrigins, "*"):
		return errors.New("http.cors_allow_origins cannot be '*' in production")
	case c.Swagger.Enabled && !c.Swagger.RequireAuth && len(c.Swagger.AllowedIPs) == 0:
		return errors.New("swagger must require authentication or an IP allow list in production")
	case c.Telemetry.DBLogFullSQL:
		return errors.New("telemetry.db_log_full_sql must be false in production")
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// TrainingOptions converts the forecast section into payment predictor options.
func (f ForecastConfig) TrainingOptions() forecast.TrainingOptions {
	opts := forecast.DefaultTrainingOptions()
	opts.MinSamples = f.MinTrainingInvoices
	opts.TestFraction = f.TestFraction
	opts.Seed = f.RandomSeed
	opts.Boosting.NumTrees = f.NumTrees
	opts.Boosting.MaxDepth = f.MaxDepth
	opts.Boosting.LearningRate = f.LearningRate
	return opts
}

// TrendOptions converts the forecast section into trend forecaster options.
func (f ForecastConfig) TrendOptions() forecast.TrendOptions {
	opts := forecast.DefaultTrendOptions()
	opts.MinHistoryDays = f.MinHistoryDays
	opts.ValidationDays = f.ValidationDays
	return opts
}
