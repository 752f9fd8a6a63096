package state

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/picklr-io/sitestack/internal/ir"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock(ctx context.Context) error

	// Unlock releases the lock on the state.
	Unlock(ctx context.Context) error
}

// BackendConfig holds configuration for a state backend.
type BackendConfig struct {
	Type string // "local" or "s3"

	// Dir is the project directory the local state file lives under.
	Dir string

	Bucket        string
	Key           string
	Region        string
	DynamoDBTable string // for locking
	Encrypt       bool   // server-side encryption of the state object
}

// NewBackend creates a state backend from configuration.
func NewBackend(ctx context.Context, cfg *BackendConfig) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backend configuration is nil")
	}

	switch cfg.Type {
	case "local", "":
		return NewManager(filepath.Join(cfg.Dir, DefaultPath)), nil
	case "s3":
		return newS3Backend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}

// WithLock runs fn while holding the backend lock.
func WithLock(ctx context.Context, b Backend, fn func() error) (err error) {
	if err := b.Lock(ctx); err != nil {
		return err
	}
	defer func() {
		if unlockErr := b.Unlock(ctx); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}()
	return fn()
}
