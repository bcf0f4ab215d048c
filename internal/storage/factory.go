package storage

import (
	"context"

	appconfig "github.com/fedutinova/avatarcast/internal/config"
)

func NewStorage(ctx context.Context, cfg appconfig.Config) (Storage, error) {
	switch cfg.StorageMode {
	case "s3", "aws", "localstack":
		return NewS3Storage(ctx, cfg)
	default:
		return NewLocalStorage(cfg.LocalStorageDir, cfg.LocalStorageURL)
	}
}

// IsLocal reports whether artifacts are served by this process under /files.
func IsLocal(cfg appconfig.Config) bool {
	switch cfg.StorageMode {
	case "s3", "aws", "localstack":
		return false
	default:
		return true
	}
}

func GetStorageType(cfg appconfig.Config) string {
	switch cfg.StorageMode {
	case "s3", "aws", "localstack":
		if isLocalStack(cfg.S3Endpoint) {
			return "LocalStack S3"
		}
		return "AWS S3"
	case "local", "filesystem":
		return "Local Filesystem"
	default:
		return "Local Filesystem (default)"
	}
}
