package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"chatstate/internal/chat/model"
	"chatstate/internal/chat/state"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
)

// clusterFactory 将所有命令指向同一个 miniredis
func clusterFactory(mr *miniredis.Miniredis) StateFactory {
	return func(ctx context.Context, cfg *store.StateConfig, _ corelog.Logger) (*state.State, error) {
		cfg.Mode = store.ModeCluster
		cfg.Redis.Addr = mr.Addr()
		return state.New(ctx, cfg, corelog.NewNopLogger())
	}
}

func newSeedState(t *testing.T, mr *miniredis.Miniredis) *state.State {
	cfg := store.DefaultStateConfig()
	cfg.Mode = store.ModeCluster
	cfg.Redis.Addr = mr.Addr()
	st, err := state.New(context.Background(), cfg, corelog.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func run(t *testing.T, mr *miniredis.Miniredis, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(clusterFactory(mr))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, miniredis.RunT(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatstate-admin")
}

func TestSessionCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	seed := newSeedState(t, mr)

	_, err := seed.Sessions.Save(ctx, &model.Session{SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)

	out, err := run(t, mr, "session", "show", "u1")
	require.NoError(t, err)
	var sess model.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sess))
	assert.Equal(t, "s1", sess.SessionID)

	_, err = run(t, mr, "session", "purge", "u1")
	require.NoError(t, err)

	found, err := seed.Sessions.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = run(t, mr, "session", "show", "u1")
	assert.Error(t, err)
}

func TestRateLimitReset(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	seed := newSeedState(t, mr)

	for _, id := range []string{"c1", "c2"} {
		_, err := seed.RateLimits.Save(ctx, &model.RateLimit{ClientID: id, Count: 1, ExpiresAt: time.Now().Add(time.Hour)})
		require.NoError(t, err)
	}

	_, err := run(t, mr, "ratelimit", "reset")
	assert.Error(t, err, "reset requires --yes")

	out, err := run(t, mr, "ratelimit", "reset", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "would delete 2")

	out, err = run(t, mr, "ratelimit", "show", "c1", "-o", "yaml")
	require.NoError(t, err)
	var shown map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "c1", shown["clientid"])

	out, err = run(t, mr, "ratelimit", "reset", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2")

	limit, err := seed.RateLimits.FindByClientID(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, limit)
}

func TestPresenceCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	seed := newSeedState(t, mr)

	require.NoError(t, seed.Presence.Add(ctx, "u1", "r1"))
	require.NoError(t, seed.Presence.Add(ctx, "u1", "r2"))

	out, err := run(t, mr, "presence", "list", "u1")
	require.NoError(t, err)
	var rooms []string
	require.NoError(t, json.Unmarshal([]byte(out), &rooms))
	assert.ElementsMatch(t, []string{"r1", "r2"}, rooms)

	_, err = run(t, mr, "presence", "clear", "u1")
	require.NoError(t, err)

	rooms, err = seed.Presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestTimelineCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	seed := newSeedState(t, mr)

	for _, content := range []string{"a", "b", "c"} {
		_, err := seed.Timeline.Save(ctx, &model.Message{RoomID: "r1", SenderID: "u1", Type: model.MessageTypeText, Content: content})
		require.NoError(t, err)
	}

	out, err := run(t, mr, "timeline", "recent", "r1", "--size", "2")
	require.NoError(t, err)
	var page model.Page[model.Message]
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "b", page.Items[0].Content)
	assert.Equal(t, "c", page.Items[1].Content)

	out, err = run(t, mr, "timeline", "count", "r1", "empty", "--since", "1h")
	require.NoError(t, err)
	var counts []model.RoomMessageCount
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, []model.RoomMessageCount{{RoomID: "r1", Count: 3}, {RoomID: "empty", Count: 0}}, counts)
}

func TestCacheCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	seed := newSeedState(t, mr)

	require.NoError(t, seed.Cache.Set(ctx, "k1", &model.Session{SessionID: "s1", UserID: "u1"}))

	out, err := run(t, mr, "cache", "size")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, mr, "cache", "get", "k1")
	require.NoError(t, err)
	var entry cacheEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entry))
	assert.Equal(t, "k1", entry.Key)
	assert.Equal(t, "chat.Session", entry.Type)
	assert.Contains(t, entry.Raw, `"s1"`)

	_, err = run(t, mr, "cache", "get", "missing")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	mr := miniredis.RunT(t)
	path := filepath.Join(t.TempDir(), "state.yaml")
	require.NoError(t, os.WriteFile(path, []byte("near_cache:\n  hash_key: other:store\n"), 0o644))

	seed := newSeedState(t, mr)
	require.NoError(t, seed.Cache.Set(context.Background(), "k1", "v"))

	out, err := run(t, mr, "-c", path, "cache", "size")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out, "reads the configured hash")

	_, err = run(t, mr, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "cache", "size")
	assert.Error(t, err)
}

func TestUnsupportedOutput(t *testing.T) {
	_, err := run(t, miniredis.RunT(t), "presence", "list", "u1", "-o", "xml")
	assert.Error(t, err)
}
