package config

const (
	// MergePolicyQueue makes a concurrent ingestion wait for the in-flight merge.
	MergePolicyQueue = "queue"
	// MergePolicyReject fails a concurrent ingestion with ErrStoreBusy.
	MergePolicyReject = "reject"

	// IndexBackendFile persists the index as a local file replaced by atomic rename.
	IndexBackendFile = "file"
	// IndexBackendMinio persists the index as a single object in S3-compatible storage.
	IndexBackendMinio = "minio"

	// DefaultThreshold is the relevance threshold used when none is configured.
	// Deployments have used values between 0.4 and 0.5; treat it as tunable.
	DefaultThreshold = 0.4
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8000/"
	}
	if cfg.Storage.IndexBackend == "" {
		cfg.Storage.IndexBackend = IndexBackendFile
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/kotae/data/index/pages.kidx"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/catalog.db"
	}
	if cfg.Storage.UploadDirectory == "" {
		cfg.Storage.UploadDirectory = "/usr/local/var/kotae/uploaded_files"
	}
	if cfg.Storage.Minio.Object == "" {
		cfg.Storage.Minio.Object = "kotae/pages.kidx"
	}
	if cfg.Embedding.Kind == "" {
		cfg.Embedding.Kind = "ollama"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 60
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Generation.Kind == "" {
		cfg.Generation.Kind = "ollama"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "openhermes"
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = 64
	}
	if cfg.Ingest.MergePolicy == "" {
		cfg.Ingest.MergePolicy = MergePolicyQueue
	}
	if cfg.Ingest.TimeoutSeconds == 0 {
		cfg.Ingest.TimeoutSeconds = 600
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
