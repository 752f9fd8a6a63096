// Package state reads and writes the recorded deployment state.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/picklr-io/sitestack/internal/ir"
)

// DefaultPath is where the local backend keeps state, relative to the project.
const DefaultPath = ".sitestack/state.json"

// CurrentVersion is the state format version written by this build.
const CurrentVersion = 1

// New returns an empty state with a fresh lineage.
func New() *ir.State {
	return &ir.State{
		Version: CurrentVersion,
		Lineage: uuid.NewString(),
	}
}

// Manager is the local file backend.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{
		path: path,
	}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state from the configured path.
// If the state file is encrypted, it is transparently decrypted before loading.
func (m *Manager) Read(ctx context.Context) (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	st, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load state from %s: %w", m.path, err)
	}
	return st, nil
}

// Write saves the state to the configured path. The file is replaced
// atomically, so a crash never leaves a truncated state behind.
// If SITESTACK_STATE_ENCRYPTION_KEY is set, the file is transparently encrypted.
func (m *Manager) Write(ctx context.Context, st *ir.State) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := Encode(st)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to write state file %s: %w", m.path, err)
	}
	return nil
}

// Encode serializes st as indented JSON and seals it when a key is set.
func Encode(st *ir.State) ([]byte, error) {
	if st.Lineage == "" {
		st.Lineage = uuid.NewString()
	}
	if st.Version == 0 {
		st.Version = CurrentVersion
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	data = append(data, '\n')

	key := encryptionKey()
	if key == nil {
		return data, nil
	}
	sealed, err := seal(st, data, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return sealed, nil
}

// Decode is the inverse of Encode.
func Decode(raw []byte) (*ir.State, error) {
	var st *ir.State
	if IsEncrypted(raw) {
		var err error
		if st, err = unseal(raw, encryptionKey()); err != nil {
			return nil, err
		}
	} else {
		st = &ir.State{}
		if err := json.Unmarshal(raw, st); err != nil {
			return nil, fmt.Errorf("failed to parse state: %w", err)
		}
	}
	if st.Version > CurrentVersion {
		return nil, fmt.Errorf("state version %d is newer than supported version %d", st.Version, CurrentVersion)
	}
	return st, nil
}
