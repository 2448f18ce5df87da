// Package config defines the assessment service configuration, loaded
// from YAML with environment variable overrides.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/clara-go/pkg/errors"
)

// Config is the complete configuration for the assessment service.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Audit      AuditConfig      `yaml:"audit,omitempty" validate:"omitempty"`
	Retrieval  RetrievalConfig  `yaml:"retrieval,omitempty" validate:"omitempty"`
	Validation ValidationConfig `yaml:"validation,omitempty" validate:"omitempty"`
	Pipeline   PipelineConfig   `yaml:"pipeline,omitempty" validate:"omitempty"`
	Judge      JudgeConfig      `yaml:"judge,omitempty" validate:"omitempty"`
	Models     ModelsConfig     `yaml:"models,omitempty" validate:"omitempty"`
}

// LoggingConfig controls log severity and outputs.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"CLARA_LOG_LEVEL" validate:"omitempty,oneof=debug info warn error fatal"`
	FilePath string `yaml:"file_path,omitempty" envconfig:"CLARA_LOG_FILE"`
}

// AuditConfig selects the audit store backend.
type AuditConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend" envconfig:"CLARA_AUDIT_BACKEND" validate:"omitempty,oneof=memory sqlite"`
	// Path is the sqlite database file. ":memory:" for ephemeral.
	Path string `yaml:"path,omitempty" envconfig:"CLARA_AUDIT_PATH"`
}

// CorpusConfig points at one reference corpus on disk.
type CorpusConfig struct {
	// Path to the corpus file. Format is inferred from the extension:
	// .json or .parquet.
	Path string `yaml:"path" validate:"required"`
}

// RetrievalConfig configures the reference corpora and neighbor counts.
type RetrievalConfig struct {
	Corpora map[string]CorpusConfig `yaml:"corpora,omitempty"`
	// TopK is the number of neighbors fetched per stage query.
	TopK int `yaml:"top_k" envconfig:"CLARA_RETRIEVAL_TOP_K" validate:"omitempty,gt=0"`
}

// ValidationConfig holds the sub-score thresholds and the per-judge
// timeout.
type ValidationConfig struct {
	FaithfulnessThreshold float64       `yaml:"faithfulness_threshold" validate:"omitempty,gte=0,lte=1"`
	RelevanceThreshold    float64       `yaml:"relevance_threshold" validate:"omitempty,gte=0,lte=1"`
	CorrectnessThreshold  float64       `yaml:"correctness_threshold" validate:"omitempty,gte=0,lte=1"`
	JudgeTimeout          time.Duration `yaml:"judge_timeout" envconfig:"CLARA_JUDGE_TIMEOUT"`
}

// PipelineConfig controls orchestration behavior.
type PipelineConfig struct {
	// RevisionBudget bounds how many revision rounds the evaluator may
	// request per application.
	RevisionBudget int `yaml:"revision_budget" envconfig:"CLARA_REVISION_BUDGET" validate:"omitempty,gte=0"`
	// MaxAttempts is the per-stage retry limit for transient failures.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,gt=0"`
	// BackoffMultiplier scales the exponential retry backoff.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" validate:"omitempty,gt=0"`
	// Workers is the size of the worker pool processing applications.
	Workers int `yaml:"workers" envconfig:"CLARA_PIPELINE_WORKERS" validate:"omitempty,gt=0"`
	// RiskTolerance is "low", "medium" or "high"; it shifts the
	// approval cutoff and evaluator strictness.
	RiskTolerance string `yaml:"risk_tolerance" envconfig:"CLARA_RISK_TOLERANCE" validate:"omitempty,oneof=low medium high"`
}

// JudgeConfig selects the judge implementation.
type JudgeConfig struct {
	// Provider is "heuristic" or "anthropic".
	Provider string `yaml:"provider" envconfig:"CLARA_JUDGE_PROVIDER" validate:"omitempty,oneof=heuristic anthropic"`
	ModelID  string `yaml:"model_id,omitempty" envconfig:"CLARA_JUDGE_MODEL"`
	APIKey   string `yaml:"api_key,omitempty" envconfig:"ANTHROPIC_API_KEY"`
}

// ModelsConfig points at the coefficient files for the scoring models.
type ModelsConfig struct {
	// InterestPath holds linear model coefficients for interest rate
	// estimation. Empty means built-in defaults.
	InterestPath string `yaml:"interest_path,omitempty" envconfig:"CLARA_INTEREST_MODEL"`
	// RiskPath holds logistic model coefficients for default risk.
	RiskPath string `yaml:"risk_path,omitempty" envconfig:"CLARA_RISK_MODEL"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Audit:   AuditConfig{Backend: "memory"},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Validation: ValidationConfig{
			FaithfulnessThreshold: 0.7,
			RelevanceThreshold:    0.7,
			CorrectnessThreshold:  0.7,
			JudgeTimeout:          30 * time.Second,
		},
		Pipeline: PipelineConfig{
			RevisionBudget:    3,
			MaxAttempts:       3,
			BackoffMultiplier: 2.0,
			Workers:           4,
			RiskTolerance:     "medium",
		},
		Judge: JudgeConfig{Provider: "heuristic"},
	}
}

// Load reads the YAML file at path (if non-empty), applies environment
// variable overrides, and validates the result. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.ResourceNotFound, "failed to read config file"),
				errors.Fields{"path": path},
			)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
				errors.Fields{"path": path},
			)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return errors.WithFields(
				errors.New(errors.InvalidInput, "invalid configuration"),
				errors.Fields{"field": first.Namespace(), "constraint": first.Tag()},
			)
		}
		return errors.Wrap(err, errors.InvalidInput, "invalid configuration")
	}
	return nil
}
