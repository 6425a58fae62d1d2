// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
// BaseURL is the public address citation locators are built against.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// StorageConfig holds the durable index location, the catalog database and the upload directory.
type StorageConfig struct {
	IndexBackend    string      `yaml:"index_backend"` // "file" or "minio"
	IndexPath       string      `yaml:"index_path"`
	DatabasePath    string      `yaml:"database_path"`
	UploadDirectory string      `yaml:"upload_directory"`
	Minio           MinioConfig `yaml:"minio"`
}

// MinioConfig locates the index snapshot in S3-compatible object storage.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Kind              string  `yaml:"kind"` // openai, ollama, gemini, onnx, mock
	Model             string  `yaml:"model"`
	Endpoint          string  `yaml:"endpoint"`
	APIKey            string  `yaml:"api_key"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Dimensions        int     `yaml:"dimensions"`
	BatchSize         int     `yaml:"batch_size"`
	Concurrency       int     `yaml:"concurrency"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	CacheSize         int     `yaml:"cache_size"`
	ModelPath         string  `yaml:"model_path"`
	MaxTokens         int     `yaml:"max_tokens"`
}

// GenerationConfig selects and configures the generative model client.
type GenerationConfig struct {
	Kind           string `yaml:"kind"` // openai, ollama, gemini, anthropic, mock
	Model          string `yaml:"model"`
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"api_key"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RetrievalConfig holds the number of candidates and the relevance threshold.
type RetrievalConfig struct {
	TopK      int      `yaml:"top_k"`
	Threshold *float64 `yaml:"threshold"`
}

// ThresholdOrDefault returns the configured threshold; defaults to DefaultThreshold when unset.
// Zero is a valid threshold, so an explicit 0 is kept.
func (r *RetrievalConfig) ThresholdOrDefault() float64 {
	if r.Threshold != nil {
		return *r.Threshold
	}
	return DefaultThreshold
}

// IngestConfig holds the background ingestion queue settings.
type IngestConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	MergePolicy    string `yaml:"merge_policy"` // "queue" or "reject"
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-task deadline.
func (i *IngestConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutSeconds) * time.Second
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ResolveAPIKey returns key when set, else the value of the environment variable named by env.
func ResolveAPIKey(key, env string) string {
	if key != "" {
		return key
	}
	if env != "" {
		return os.Getenv(env)
	}
	return ""
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.UploadDirectory = expandPath(cfg.Storage.UploadDirectory, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects settings that ApplyDefaults cannot repair.
func Validate(cfg *Config) error {
	switch cfg.Ingest.MergePolicy {
	case MergePolicyQueue, MergePolicyReject:
	default:
		return fmt.Errorf("invalid ingest.merge_policy %q (supported: queue, reject)", cfg.Ingest.MergePolicy)
	}
	switch cfg.Storage.IndexBackend {
	case IndexBackendFile, IndexBackendMinio:
	default:
		return fmt.Errorf("invalid storage.index_backend %q (supported: file, minio)", cfg.Storage.IndexBackend)
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
