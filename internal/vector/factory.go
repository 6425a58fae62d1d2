package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
)

// NewBackend creates the durable backend named by cfg.IndexBackend.
// Supported backends: "file" (default), "minio".
func NewBackend(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.IndexBackend {
	case config.IndexBackendFile, "":
		return NewFileBackend(cfg.IndexPath)
	case config.IndexBackendMinio:
		return NewMinioBackend(ctx, MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			Object:    cfg.Minio.Object,
			UseSSL:    cfg.Minio.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: file, minio)", cfg.IndexBackend)
	}
}

// ParseMergePolicy converts a configured policy name. Empty means PolicyQueue.
func ParseMergePolicy(name string) (MergePolicy, error) {
	switch MergePolicy(name) {
	case PolicyQueue, "":
		return PolicyQueue, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown merge policy: %s (supported: queue, reject)", name)
	}
}
