// Package artifact stores files uploaded by runners (patches, logs, build
// outputs). Blob storage proper is an external concern, this keeps a small
// store interface with a filesystem implementation behind it.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/taskhive/taskhive/internal/log"
	"github.com/taskhive/taskhive/internal/model"
)

// Store persists uploaded artifacts.
type Store interface {
	Save(ctx context.Context, userID int, runnerID, name string, r io.Reader) (string, error)
}

// FSStoreConfig is the configuration for the filesystem store.
type FSStoreConfig struct {
	// BaseDir is the root directory artifacts are stored under.
	BaseDir string
	// MaxBytes caps a single artifact, 0 means 50MB.
	MaxBytes int64
	Logger   log.Logger
}

func (c *FSStoreConfig) defaults() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base dir is required")
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifact.FSStore"})
	return nil
}

// FSStore is a filesystem implementation of Store.
type FSStore struct {
	baseDir  string
	maxBytes int64
	logger   log.Logger
}

// NewFSStore creates a new filesystem store.
func NewFSStore(cfg FSStoreConfig) (*FSStore, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &FSStore{
		baseDir:  cfg.BaseDir,
		maxBytes: cfg.MaxBytes,
		logger:   cfg.Logger,
	}, nil
}

// Save writes the artifact under <base>/<user>/<runner>/<name> and returns
// the stored path. The name is flattened to its base so an upload can never
// escape the store directory.
func (s *FSStore) Save(ctx context.Context, userID int, runnerID, name string, r io.Reader) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("invalid artifact name: %w", model.ErrNotValid)
	}

	dir := filepath.Join(s.baseDir, strconv.Itoa(userID), runnerID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("could not create artifact dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("could not create artifact file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("could not write artifact: %w", err)
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return "", fmt.Errorf("artifact exceeds %d bytes: %w", s.maxBytes, model.ErrNotValid)
	}

	s.logger.Debugf("Stored artifact %s (%d bytes)", path, n)

	return path, nil
}
