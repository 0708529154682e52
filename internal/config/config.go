// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/aristath/hybrid/internal/modules/evaluation"
	"github.com/aristath/hybrid/internal/modules/optimization"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the run database (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	Optimizer OptimizerConfig
	Backend   BackendConfig

	RunRetentionDays    int
	MaintenanceSchedule string // Cron spec for retention pruning and WAL checkpoints
}

// OptimizerConfig holds the default optimizer settings for new runs
type OptimizerConfig struct {
	Algorithm        string
	MaxEvaluations   int
	GradientStrategy string
	Step             float64
	Tolerance        float64
}

// BackendConfig holds statevector backend settings
type BackendConfig struct {
	Shots int // 0 means exact expectation values
	Seed  uint64
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HYBRID_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		Port:      getEnvAsInt("PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Optimizer: OptimizerConfig{
			Algorithm:        getEnv("VQE_ALGORITHM", optimization.DefaultAlgorithm),
			MaxEvaluations:   getEnvAsInt("VQE_MAX_EVALUATIONS", optimization.DefaultMaxEvaluations),
			GradientStrategy: getEnv("VQE_GRADIENT_STRATEGY", ""),
			Step:             getEnvAsFloat("VQE_STEP", evaluation.DefaultStep),
			Tolerance:        getEnvAsFloat("VQE_TOLERANCE", optimization.DefaultTolerance),
		},
		Backend: BackendConfig{
			Shots: getEnvAsInt("BACKEND_SHOTS", 0),
			Seed:  uint64(getEnvAsInt("BACKEND_SEED", 42)),
		},
		RunRetentionDays:    getEnvAsInt("RUN_RETENTION_DAYS", 30),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "@daily"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values for consistency
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Backend.Shots < 0 {
		return fmt.Errorf("invalid BACKEND_SHOTS %d: must not be negative", c.Backend.Shots)
	}
	if c.RunRetentionDays < 0 {
		return fmt.Errorf("invalid RUN_RETENTION_DAYS %d: must not be negative", c.RunRetentionDays)
	}
	if _, err := cron.ParseStandard(c.MaintenanceSchedule); err != nil {
		return fmt.Errorf("invalid MAINTENANCE_SCHEDULE %q: %w", c.MaintenanceSchedule, err)
	}
	// Building the optimizer catches unknown algorithms and bad numeric settings
	if _, err := optimization.FromOptions(c.OptimizerOptions()); err != nil {
		return fmt.Errorf("invalid optimizer settings: %w", err)
	}
	if _, err := evaluation.ParseGradientStrategy(c.Optimizer.GradientStrategy); err != nil {
		return fmt.Errorf("invalid VQE_GRADIENT_STRATEGY: %w", err)
	}
	return nil
}

// OptimizerOptions converts the optimizer defaults into run options.
// An empty gradient strategy is left out so gradient-based optimizers pick their own default.
func (c *Config) OptimizerOptions() optimization.Options {
	opts := optimization.Options{
		optimization.KeyAlgorithm:      c.Optimizer.Algorithm,
		optimization.KeyMaxEvaluations: c.Optimizer.MaxEvaluations,
		optimization.KeyStep:           c.Optimizer.Step,
		optimization.KeyTolerance:      c.Optimizer.Tolerance,
	}
	if c.Optimizer.GradientStrategy != "" {
		opts[optimization.KeyGradientStrategy] = c.Optimizer.GradientStrategy
	}
	return opts
}

// RunsDBPath returns the path of the run history database
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
