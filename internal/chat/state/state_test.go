package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstate/internal/chat/model"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	"chatstate/internal/nearcache"
)

func TestNew_SingleMode(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, nil, corelog.NewTestLogger(t))
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.Config.NodeID)
	require.NoError(t, s.Ping(ctx))

	_, err = s.Sessions.Save(ctx, &model.Session{SessionID: "s1", UserID: "u1"})
	require.NoError(t, err)
	sess, err := s.Sessions.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)

	require.NoError(t, s.Presence.Add(ctx, "u1", "r1"))
	in, err := s.Presence.IsInRoom(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.True(t, in)

	m, err := s.Timeline.Save(ctx, &model.Message{RoomID: "r1", Content: "hi"})
	require.NoError(t, err)
	got, err := s.Timeline.FindByID(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = s.RateLimits.Save(ctx, &model.RateLimit{ClientID: "c1", ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)
	n, err := s.RateLimits.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.Cache.Set(ctx, "room:r1", model.RoomMessageCount{RoomID: "r1", Count: 1}))
	size, err := s.Cache.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
	_, ok, err := nearcache.Get[model.RoomMessageCount](ctx, s.Cache, "room:r1")
	require.NoError(t, err)
	assert.True(t, ok)

	reg := prometheus.NewRegistry()
	require.NoError(t, s.Register(reg))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	// 在线集合与其他组件一样导出指标
	assert.Equal(t, int64(1), s.Presence.GetMetrics().SetCount.Load())
	presenceOps := 0
	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "component" && l.GetValue() == "presence" {
					presenceOps++
				}
			}
		}
	}
	assert.Positive(t, presenceOps)
}

func TestNew_ClusterMode(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := store.DefaultStateConfig()
	cfg.Mode = store.ModeCluster
	cfg.NodeID = "node-a"
	cfg.Redis.Addr = mr.Addr()

	a, err := New(ctx, cfg, corelog.NewTestLogger(t))
	require.NoError(t, err)
	defer a.Close()

	cfgB := *cfg
	cfgB.NodeID = "node-b"
	b, err := New(ctx, &cfgB, corelog.NewTestLogger(t))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Cache.Set(ctx, "k", model.RoomMessageCount{RoomID: "r1"}))
	require.Eventually(t, func() bool { return b.Cache.CachedLocally("k") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Presence.Add(ctx, "u1", "r1"))
	rooms, err := b.Presence.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, rooms)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := store.DefaultStateConfig()
	cfg.Mode = "bogus"
	_, err := New(context.Background(), cfg, corelog.NewNopLogger())
	assert.Error(t, err)

	cfg = store.DefaultStateConfig()
	cfg.Mode = store.ModeCluster
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond
	cfg.Redis.MaxRetries = 0
	_, err = New(context.Background(), cfg, corelog.NewNopLogger())
	assert.Error(t, err)
}
