package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/picklr-io/sitestack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReadWrite(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	statePath := filepath.Join(t.TempDir(), ".sitestack", "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	// 1. Read non-existent state
	s, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.NotEmpty(t, s.Lineage)

	// 2. Write state
	s.Lineage = "test-lineage"
	s.Serial = 1
	s.Resources = []*ir.ResourceState{
		{
			Type:         "aws:S3.Bucket",
			Name:         "site",
			Provider:     "aws",
			Inputs:       map[string]any{"bucketPrefix": "demo-"},
			InputsHash:   "abc",
			Outputs:      map[string]any{"bucket": "demo-1234"},
			Dependencies: []string{"aws:IAM.Role.lambda"},
		},
	}
	s.Outputs = map[string]any{"originURL": "http://demo-1234.s3-website-us-east-1.amazonaws.com"}
	require.NoError(t, mgr.Write(ctx, s))

	// 3. Read back
	s2, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-lineage", s2.Lineage)
	assert.Equal(t, 1, s2.Serial)
	require.Len(t, s2.Resources, 1)
	assert.Equal(t, "demo-1234", s2.Resources[0].Outputs["bucket"])
	assert.Equal(t, []string{"aws:IAM.Role.lambda"}, s2.Resources[0].Dependencies)
	assert.Equal(t, s.Outputs, s2.Outputs)

	// No temp files are left next to the state.
	entries, err := os.ReadDir(filepath.Dir(statePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestManager_WriteEncrypted(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "secret")
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	st := New()
	st.Outputs = map[string]any{"cdnURL": "https://d111111abcdef8.cloudfront.net"}
	require.NoError(t, mgr.Write(ctx, st))

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.Outputs, got.Outputs)
}

func TestDecode_NewerVersion(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	_, err := Decode([]byte(`{"version":99,"serial":1}`))
	assert.ErrorContains(t, err, "newer")
}

func TestDecode_Malformed(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")
	_, err := Decode([]byte(`{"version":`))
	assert.Error(t, err)
}

func TestManager_Lock(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), ".sitestack", "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	require.NoError(t, mgr.Lock(ctx))

	other := NewManager(statePath)
	err := other.Lock(ctx)
	assert.ErrorContains(t, err, "locked by another process")

	require.NoError(t, mgr.Unlock(ctx))
	require.NoError(t, other.Lock(ctx))
	require.NoError(t, other.Unlock(ctx))

	// Unlocking twice is harmless.
	assert.NoError(t, other.Unlock(ctx))
}

func TestManager_LockStale(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(statePath)
	ctx := context.Background()

	require.NoError(t, mgr.Lock(ctx))
	old := time.Now().Add(-2 * StaleLockAge)
	require.NoError(t, os.Chtimes(statePath+".lock", old, old))

	require.NoError(t, NewManager(statePath).Lock(ctx))
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewBackend(ctx, &BackendConfig{Type: "local", Dir: dir})
	require.NoError(t, err)
	mgr, ok := b.(*Manager)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, DefaultPath), mgr.Path())

	_, err = NewBackend(ctx, &BackendConfig{Type: "consul"})
	assert.ErrorContains(t, err, "unknown backend type")

	_, err = NewBackend(ctx, &BackendConfig{Type: "s3"})
	assert.ErrorContains(t, err, "bucket")

	_, err = NewBackend(ctx, nil)
	assert.Error(t, err)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	called := false
	err := WithLock(ctx, mgr, func() error {
		called = true
		_, statErr := os.Stat(mgr.lockPath())
		assert.NoError(t, statErr)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	_, err = os.Stat(mgr.lockPath())
	assert.True(t, os.IsNotExist(err))
}
