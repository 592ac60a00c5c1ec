// Package config loads semsim settings from a TOML file, an optional .env
// file and SEMSIM_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const defaultConfigFile = "semsim.toml"

// Output modes.
const (
	ModeInPlace = "inplace"
	ModeNew     = "new"
)

// Embedding providers.
const (
	ProviderHTTP = "http"
	ProviderONNX = "onnx"
)

// Config aggregates all runtime settings.
type Config struct {
	Job       JobConfig       `toml:"job"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Server    ServerConfig    `toml:"server"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`

	// Warnings lists keys in the config file that were not recognized.
	Warnings []string `toml:"-"`
}

// JobConfig holds the defaults of a scoring job.
type JobConfig struct {
	Sheet           string   `toml:"sheet"`
	ReferenceColumn string   `toml:"reference_column"`
	CandidateColumn string   `toml:"candidate_column"`
	ScoreColumn     string   `toml:"score_column"`
	Mode            string   `toml:"mode"`
	BatchSize       int      `toml:"batch_size"`
	OutputDir       string   `toml:"output_dir"`
	ResultHeaders   []string `toml:"result_headers"`
	NormalizeNFKC   bool     `toml:"normalize_nfkc"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider          string     `toml:"provider"`
	APIType           string     `toml:"api_type"` // "openai" or "ollama"
	BaseURL           string     `toml:"base_url"`
	APIKey            string     `toml:"api_key"`
	Model             string     `toml:"model"`
	TimeoutSeconds    int        `toml:"timeout_seconds"`
	RequestsPerSecond float64    `toml:"requests_per_second"`
	ONNX              ONNXConfig `toml:"onnx"`
}

// ONNXConfig configures the local ONNX runtime backend.
type ONNXConfig struct {
	Library       string   `toml:"library"`
	ModelPath     string   `toml:"model_path"`
	TokenizerPath string   `toml:"tokenizer_path"`
	MaxSeqLen     int      `toml:"max_seq_len"`
	HiddenSize    int      `toml:"hidden_size"`
	InputNames    []string `toml:"input_names"`
	OutputName    string   `toml:"output_name"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr               string `toml:"addr"`
	UploadDir          string `toml:"upload_dir"`
	MaxUploadMB        int    `toml:"max_upload_mb"`
	ArtifactTTLMinutes int    `toml:"artifact_ttl_minutes"`
	// SweepIntervalMinutes is how often stale result files are removed.
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// StoreConfig configures the job ledger.
type StoreConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the config file at path (or $SEMSIM_CONFIG, or ./semsim.toml).
// A missing file is not an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = getEnv("SEMSIM_CONFIG", defaultConfigFile)
		explicit = os.Getenv("SEMSIM_CONFIG") != ""
	}

	cfg := &Config{}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		for _, key := range md.Undecoded() {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown config key %q", key.String()))
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults populates zero values.
func (c *Config) ApplyDefaults() {
	if c.Job.ReferenceColumn == "" {
		c.Job.ReferenceColumn = "reference"
	}
	if c.Job.CandidateColumn == "" {
		c.Job.CandidateColumn = "candidate"
	}
	if c.Job.ScoreColumn == "" {
		c.Job.ScoreColumn = "score"
	}
	if c.Job.Mode == "" {
		c.Job.Mode = ModeNew
	}
	if c.Job.BatchSize <= 0 {
		c.Job.BatchSize = 50
	}
	if c.Job.OutputDir == "" {
		c.Job.OutputDir = "uploads"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderHTTP
	}
	if c.Embedding.APIType == "" {
		c.Embedding.APIType = "openai"
	}
	if c.Embedding.TimeoutSeconds <= 0 {
		c.Embedding.TimeoutSeconds = 30
	}
	if c.Embedding.ONNX.MaxSeqLen <= 0 {
		c.Embedding.ONNX.MaxSeqLen = 512
	}
	if c.Embedding.ONNX.HiddenSize <= 0 {
		c.Embedding.ONNX.HiddenSize = 1024
	}
	if len(c.Embedding.ONNX.InputNames) == 0 {
		c.Embedding.ONNX.InputNames = []string{"input_ids", "attention_mask"}
	}
	if c.Embedding.ONNX.OutputName == "" {
		c.Embedding.ONNX.OutputName = "last_hidden_state"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5001"
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = c.Job.OutputDir
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 32
	}
	if c.Server.ArtifactTTLMinutes <= 0 {
		c.Server.ArtifactTTLMinutes = 24 * 60
	}
	if c.Server.SweepIntervalMinutes <= 0 {
		c.Server.SweepIntervalMinutes = 60
	}
	if c.Store.Path == "" {
		c.Store.Path = "semsim.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for values that would make every job fail.
func (c *Config) Validate() error {
	switch c.Job.Mode {
	case ModeInPlace, ModeNew:
	default:
		return fmt.Errorf("invalid job mode %q (must be %s or %s)", c.Job.Mode, ModeInPlace, ModeNew)
	}
	if c.Job.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Job.BatchSize)
	}
	switch c.Embedding.Provider {
	case ProviderHTTP:
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url is required for the %s provider", ProviderHTTP)
		}
		if c.Embedding.APIType != "openai" && c.Embedding.APIType != "ollama" {
			return fmt.Errorf("invalid embedding.api_type %q (must be openai or ollama)", c.Embedding.APIType)
		}
	case ProviderONNX:
		if c.Embedding.ONNX.ModelPath == "" || c.Embedding.ONNX.TokenizerPath == "" {
			return fmt.Errorf("embedding.onnx.model_path and embedding.onnx.tokenizer_path are required")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Job.Sheet = getEnv("SEMSIM_SHEET", c.Job.Sheet)
	c.Job.ReferenceColumn = getEnv("SEMSIM_REFERENCE_COLUMN", c.Job.ReferenceColumn)
	c.Job.CandidateColumn = getEnv("SEMSIM_CANDIDATE_COLUMN", c.Job.CandidateColumn)
	c.Job.ScoreColumn = getEnv("SEMSIM_SCORE_COLUMN", c.Job.ScoreColumn)
	c.Job.Mode = strings.ToLower(getEnv("SEMSIM_MODE", c.Job.Mode))
	c.Job.BatchSize = getEnvInt("SEMSIM_BATCH_SIZE", c.Job.BatchSize)
	c.Job.OutputDir = getEnv("SEMSIM_OUTPUT_DIR", c.Job.OutputDir)
	c.Job.NormalizeNFKC = getEnvBool("SEMSIM_NORMALIZE_NFKC", c.Job.NormalizeNFKC)

	c.Embedding.Provider = strings.ToLower(getEnv("SEMSIM_EMBEDDING_PROVIDER", c.Embedding.Provider))
	c.Embedding.APIType = strings.ToLower(getEnv("SEMSIM_EMBEDDING_API_TYPE", c.Embedding.APIType))
	c.Embedding.BaseURL = getEnv("SEMSIM_EMBEDDING_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.APIKey = getEnv("SEMSIM_EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.Model = getEnv("SEMSIM_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.TimeoutSeconds = getEnvInt("SEMSIM_EMBEDDING_TIMEOUT_SECONDS", c.Embedding.TimeoutSeconds)
	c.Embedding.RequestsPerSecond = getEnvFloat("SEMSIM_EMBEDDING_RPS", c.Embedding.RequestsPerSecond)
	c.Embedding.ONNX.Library = getEnv("SEMSIM_ONNX_LIBRARY", c.Embedding.ONNX.Library)
	c.Embedding.ONNX.ModelPath = getEnv("SEMSIM_ONNX_MODEL_PATH", c.Embedding.ONNX.ModelPath)
	c.Embedding.ONNX.TokenizerPath = getEnv("SEMSIM_ONNX_TOKENIZER_PATH", c.Embedding.ONNX.TokenizerPath)

	c.Server.Addr = getEnv("SEMSIM_SERVER_ADDR", c.Server.Addr)
	c.Server.UploadDir = getEnv("SEMSIM_UPLOAD_DIR", c.Server.UploadDir)
	c.Server.ArtifactTTLMinutes = getEnvInt("SEMSIM_ARTIFACT_TTL_MINUTES", c.Server.ArtifactTTLMinutes)
	c.Server.SweepIntervalMinutes = getEnvInt("SEMSIM_SWEEP_INTERVAL_MINUTES", c.Server.SweepIntervalMinutes)

	c.Store.Path = getEnv("SEMSIM_STORE_PATH", c.Store.Path)
	c.Log.Level = getEnv("SEMSIM_LOG_LEVEL", c.Log.Level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
