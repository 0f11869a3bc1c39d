// Package storage provides artifact store implementations for trained model bundles.
package storage

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/erp/cashflow/internal/domain/forecast"
	infraconfig "github.com/erp/cashflow/internal/infrastructure/config"
)

// Backend names accepted by storage.artifact_backend
const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
	BackendMemory     = "memory"
)

// NewArtifactStore builds the artifact store selected by configuration.
func NewArtifactStore(cfg *infraconfig.StorageConfig, logger *zap.Logger) (forecast.ArtifactStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage configuration is required")
	}
	switch strings.ToLower(cfg.ArtifactBackend) {
	case "", BackendFilesystem:
		return NewFileArtifactStore(cfg.ArtifactDir, logger)
	case BackendS3:
		return NewS3ArtifactStore(cfg, WithLogger(logger))
	case BackendMemory:
		return NewMemoryArtifactStore(), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.ArtifactBackend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("artifact key is required")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid artifact key %q", key)
	}
	return nil
}
