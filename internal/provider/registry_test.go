package provider

import (
	"context"
	"testing"

	"github.com/picklr-io/sitestack/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_LoadProvider(t *testing.T) {
	r := NewRegistry("us-east-1")
	ctx := context.Background()

	_, err := r.Get("memory")
	assert.ErrorContains(t, err, "provider not loaded")

	require.NoError(t, r.LoadProvider(ctx, "memory"))
	p, err := r.Get("memory")
	require.NoError(t, err)
	assert.IsType(t, &memory.Provider{}, p)

	assert.ErrorContains(t, r.LoadProvider(ctx, "docker"), "unknown provider")
}

func TestRegistry_Offline(t *testing.T) {
	r := NewOfflineRegistry("us-east-1")
	require.NoError(t, r.LoadProvider(context.Background(), "aws"))

	p, err := r.Get("aws")
	require.NoError(t, err)
	assert.IsType(t, &memory.Provider{}, p)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry("us-east-1")
	m := memory.New()
	r.Register("aws", m)

	require.NoError(t, r.LoadProvider(context.Background(), "aws"))
	p, err := r.Get("aws")
	require.NoError(t, err)
	assert.Same(t, m, p)
}
