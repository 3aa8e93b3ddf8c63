package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatstate/internal/core/store"
)

func TestTypeTags(t *testing.T) {
	assert.Equal(t, "chat.Session", store.TypeNameOf[Session]())
	assert.Equal(t, "chat.Session", store.TypeNameOf[*Session]())
	assert.Equal(t, "chat.RateLimit", store.TypeNameOf[RateLimit]())
	assert.Equal(t, "chat.Message", store.TypeNameOf[Message]())
}

func TestMessageEnvelope(t *testing.T) {
	m := Message{ID: "m1", RoomID: "r1", Content: "hi", Timestamp: time.Unix(100, 0).UTC()}
	raw, err := store.Marshal(m)
	require.NoError(t, err)

	got, err := store.Unmarshal[Message](raw)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = store.Unmarshal[Session](raw)
	assert.True(t, store.IsTypeMismatch(err))
}

func TestPageRequest(t *testing.T) {
	assert.Equal(t, 40, PageRequest{Page: 2, Size: 20}.Offset())
	assert.True(t, PageRequest{Page: 0, Size: 1}.Valid())
	assert.False(t, PageRequest{Page: -1, Size: 1}.Valid())
	assert.False(t, PageRequest{Page: 0, Size: 0}.Valid())

	p := EmptyPage[Message](PageRequest{Page: 9, Size: 10}, 42)
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
	assert.Equal(t, int64(42), p.Total)
}

func TestPageRequest_Beyond(t *testing.T) {
	tests := []struct {
		name  string
		req   PageRequest
		total int64
		want  bool
	}{
		{"empty", PageRequest{Page: 0, Size: 10}, 0, true},
		{"first page", PageRequest{Page: 0, Size: 10}, 1, false},
		{"last partial page", PageRequest{Page: 2, Size: 10}, 21, false},
		{"exact end", PageRequest{Page: 2, Size: 10}, 20, true},
		{"overflowing page", PageRequest{Page: math.MaxInt/2 + 1, Size: 2}, 3, true},
		{"overflowing size", PageRequest{Page: 1, Size: math.MaxInt}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Beyond(tt.total))
		})
	}
}
