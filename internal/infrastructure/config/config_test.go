package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "cashflow-forecast", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "cashflow", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
		assert.Equal(t, time.Hour, cfg.JWT.TokenExpiration)
		assert.Equal(t, "filesystem", cfg.Storage.ArtifactBackend)
		assert.Equal(t, "cashflow-forecast", cfg.Telemetry.ServiceName)
		assert.Equal(t, 2, cfg.Scheduler.MaxConcurrentJobs)
	})

	t.Run("forecast defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		f := cfg.Forecast
		assert.Equal(t, 50, f.MinTrainingInvoices)
		assert.Equal(t, 60, f.MinHistoryDays)
		assert.Equal(t, 30, f.ValidationDays)
		assert.Equal(t, 0.2, f.TestFraction)
		assert.Equal(t, uint64(42), f.RandomSeed)
		assert.Equal(t, 100, f.NumTrees)
		assert.Equal(t, 6, f.MaxDepth)
		assert.Equal(t, 0.1, f.LearningRate)
		assert.Equal(t, 8, f.BatchConcurrency)
		assert.Zero(t, f.RetrainInterval)
	})

	t.Run("loads values from environment variables with CASHFLOW prefix", func(t *testing.T) {
		t.Setenv("CASHFLOW_APP_NAME", "test-app")
		t.Setenv("CASHFLOW_APP_PORT", "9000")
		t.Setenv("CASHFLOW_DATABASE_HOST", "testdb.local")
		t.Setenv("CASHFLOW_DATABASE_PORT", "5433")
		t.Setenv("CASHFLOW_DATABASE_MAX_OPEN_CONNS", "50")
		t.Setenv("CASHFLOW_DATABASE_MAX_IDLE_CONNS", "10")
		t.Setenv("CASHFLOW_FORECAST_NUM_TREES", "250")
		t.Setenv("CASHFLOW_FORECAST_RETRAIN_INTERVAL", "24h")
		t.Setenv("CASHFLOW_STORAGE_ARTIFACT_BACKEND", "s3")
		t.Setenv("CASHFLOW_STORAGE_S3_BUCKET", "models")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "test-app", cfg.Profiler.ApplicationName)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 50, cfg.Database.MaxOpenConns)
		assert.Equal(t, 10, cfg.Database.MaxIdleConns)
		assert.Equal(t, 250, cfg.Forecast.NumTrees)
		assert.Equal(t, 24*time.Hour, cfg.Forecast.RetrainInterval)
		assert.Equal(t, "s3", cfg.Storage.ArtifactBackend)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("CASHFLOW_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("CASHFLOW_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates MaxIdleConns cannot be negative", func(t *testing.T) {
		t.Setenv("CASHFLOW_DATABASE_MAX_IDLE_CONNS", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns cannot be negative")
	})
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	toml := `
[app]
env = "staging"

[database]
host = "pg.internal"
max_open_conns = 40

[auth.clients]
nightly-etl = "$2a$10$hash"

[telemetry]
sampling_ratio = 0.0

[forecast]
num_trees = 300
retrain_interval = "12h"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600))
	t.Setenv("CASHFLOW_DATABASE_HOST", "pg.override")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.App.Env)
	assert.Equal(t, "pg.override", cfg.Database.Host, "env wins over the file")
	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns, "keys absent from the file keep defaults")
	assert.Equal(t, "$2a$10$hash", cfg.Auth.Clients["nightly-etl"])
	assert.Zero(t, cfg.Telemetry.SamplingRatio, "an explicit zero is kept")
	assert.Equal(t, 300, cfg.Forecast.NumTrees)
	assert.Equal(t, 12*time.Hour, cfg.Forecast.RetrainInterval)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[app\nname ="), 0o600))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestForecastConfig_ValidateReportsEveryProblem(t *testing.T) {
	f := ForecastConfig{
		MinTrainingInvoices: 1,
		MinHistoryDays:      60,
		ValidationDays:      30,
		TestFraction:        0,
		NumTrees:            10,
		MaxDepth:            3,
		LearningRate:        0.1,
		BatchConcurrency:    0,
	}
	err := f.validate()
	require.Error(t, err)
	for _, want := range []string{"test_fraction", "min_training_invoices", "batch_concurrency"} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NotContains(t, err.Error(), "learning_rate")
}

func TestLoad_ForecastValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "test fraction out of range",
			env:     map[string]string{"CASHFLOW_FORECAST_TEST_FRACTION": "1.5"},
			wantErr: "forecast.test_fraction",
		},
		{
			name: "validation window not shorter than history",
			env: map[string]string{
				"CASHFLOW_FORECAST_MIN_HISTORY_DAYS": "30",
				"CASHFLOW_FORECAST_VALIDATION_DAYS":  "30",
			},
			wantErr: "forecast.validation_days",
		},
		{
			name:    "learning rate above one",
			env:     map[string]string{"CASHFLOW_FORECAST_LEARNING_RATE": "2"},
			wantErr: "forecast.learning_rate",
		},
		{
			name:    "negative batch concurrency",
			env:     map[string]string{"CASHFLOW_FORECAST_BATCH_CONCURRENCY": "-2"},
			wantErr: "forecast.batch_concurrency",
		},
		{
			name:    "unknown artifact backend",
			env:     map[string]string{"CASHFLOW_STORAGE_ARTIFACT_BACKEND": "gcs"},
			wantErr: "storage.artifact_backend",
		},
		{
			name:    "s3 without bucket",
			env:     map[string]string{"CASHFLOW_STORAGE_ARTIFACT_BACKEND": "s3"},
			wantErr: "storage.s3_bucket",
		},
		{
			name:    "zero trees",
			env:     map[string]string{"CASHFLOW_FORECAST_NUM_TREES": "0"},
			wantErr: "forecast.num_trees",
		},
		{
			name:    "sampling ratio out of range",
			env:     map[string]string{"CASHFLOW_TELEMETRY_SAMPLING_RATIO": "1.5"},
			wantErr: "sampling_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ProductionValidation(t *testing.T) {
	secret := strings.Repeat("s", 32)

	production := func(t *testing.T) {
		t.Setenv("CASHFLOW_APP_ENV", "production")
		t.Setenv("CASHFLOW_JWT_SECRET", secret)
		t.Setenv("CASHFLOW_DATABASE_PASSWORD", "pw")
		t.Setenv("CASHFLOW_DATABASE_SSLMODE", "require")
	}

	t.Run("accepts a complete production config", func(t *testing.T) {
		production(t)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires jwt secret", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_JWT_SECRET", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jwt.secret is required")
	})

	t.Run("rejects short jwt secret", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_JWT_SECRET", "short")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 characters")
	})

	t.Run("requires database password", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_DATABASE_PASSWORD", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password")
	})

	t.Run("rejects disabled sslmode", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_DATABASE_SSLMODE", "disable")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})

	t.Run("rejects unprotected swagger", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_SWAGGER_ENABLED", "true")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "swagger")
	})

	t.Run("allows swagger behind auth", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_SWAGGER_ENABLED", "true")
		t.Setenv("CASHFLOW_SWAGGER_REQUIRE_AUTH", "true")
		_, err := Load()
		require.NoError(t, err)
	})

	t.Run("rejects full SQL logging", func(t *testing.T) {
		production(t)
		t.Setenv("CASHFLOW_TELEMETRY_DB_LOG_FULL_SQL", "true")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "fin",
		Password: "p@ss/word",
		DBName:   "cashflow",
		SSLMode:  "require",
	}
	dsn := d.DSN()
	assert.True(t, strings.HasPrefix(dsn, "postgres://fin:"))
	assert.Contains(t, dsn, "@db:5432/cashflow?sslmode=require")
	assert.NotContains(t, dsn, "p@ss/word")
}

func TestForecastConfig_Options(t *testing.T) {
	f := ForecastConfig{
		MinTrainingInvoices: 80,
		MinHistoryDays:      90,
		ValidationDays:      14,
		TestFraction:        0.25,
		RandomSeed:          7,
		NumTrees:            40,
		MaxDepth:            3,
		LearningRate:        0.05,
	}

	opts := f.TrainingOptions()
	assert.Equal(t, 80, opts.MinSamples)
	assert.Equal(t, 0.25, opts.TestFraction)
	assert.Equal(t, uint64(7), opts.Seed)
	assert.Equal(t, 40, opts.Boosting.NumTrees)
	assert.Equal(t, 3, opts.Boosting.MaxDepth)
	assert.Equal(t, 0.05, opts.Boosting.LearningRate)
	assert.Equal(t, 1.0, opts.Boosting.Lambda, "unset knobs keep defaults")

	trend := f.TrendOptions()
	assert.Equal(t, 90, trend.MinHistoryDays)
	assert.Equal(t, 14, trend.ValidationDays)
	assert.Equal(t, 25, trend.ChangepointCount)
}
