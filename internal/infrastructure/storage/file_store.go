package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/shared"
	"go.uber.org/zap"
)

var _ forecast.ArtifactStore = (*FileArtifactStore)(nil)

// FileArtifactStore keeps artifacts as files under a root directory.
// Writes go through a temp file and rename so readers never see a partial artifact.
type FileArtifactStore struct {
	root   string
	logger *zap.Logger
}

// NewFileArtifactStore creates the root directory if needed.
func NewFileArtifactStore(root string, logger *zap.Logger) (*FileArtifactStore, error) {
	if root == "" {
		return nil, errors.New("artifact directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileArtifactStore{root: root, logger: logger}, nil
}

func (s *FileArtifactStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put writes data under key, replacing any previous artifact.
func (s *FileArtifactStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	s.logger.Debug("Artifact stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Get reads the artifact stored under key.
func (s *FileArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// Delete removes the artifact stored under key.
func (s *FileArtifactStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// Root returns the directory artifacts are written to
func (s *FileArtifactStore) Root() string {
	return s.root
}
