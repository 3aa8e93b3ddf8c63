package embedded

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedRedis(t *testing.T) {
	ctx := context.Background()
	e, err := NewEmbeddedRedis()
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.GetClient().Set(ctx, "session:1", "v", time.Minute).Err())

	peer := e.NewClient()
	defer peer.Close()
	v, err := peer.Get(ctx, "session:1").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	e.FastForward(2 * time.Minute)
	assert.Equal(t, int64(0), peer.Exists(ctx, "session:1").Val())
	assert.NotEmpty(t, e.GetAddr())
}
