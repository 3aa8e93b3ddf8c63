// Package timeline 保存房间消息时间线
//
// 每条消息写两处：房间列表 chat:room:<roomId>（按追加顺序）和 message:<id>。
// 两次写入之间没有原子性，列表写入成功而索引失败时消息只能通过房间查询看到。
// 过滤与计数需要读取整个房间列表，适用于长度有限的房间。
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chatstate/internal/chat/model"
	"chatstate/internal/core/idgen"
	corelog "chatstate/internal/core/log"
	"chatstate/internal/core/store"
	redisstore "chatstate/internal/core/store/shared/redis"
)

const (
	roomKeyPrefix    = "chat:room:"
	messageKeyPrefix = "message:"
)

// ErrInvalidPage 页号为负或页大小不为正
var ErrInvalidPage = errors.New("invalid page request")

// Store 消息时间线存储
type Store struct {
	rooms    store.ListStore[string, model.Message]
	messages *redisstore.RedisStore[string, model.Message]
	ids      idgen.IDGenerator
	logger   corelog.Logger
	now      func() time.Time
}

// NewStore 创建时间线存储，ids 为 nil 时使用 UUID v7
func NewStore(client redis.UniversalClient, ids idgen.IDGenerator, opts ...redisstore.Option) *Store {
	logger, _, opts := redisstore.ResolveOptions(opts...)
	if ids == nil {
		ids = idgen.NewUUIDGenerator(idgen.PrefixMessageID)
	}
	return &Store{
		rooms:    redisstore.NewRedisListStore[string, model.Message](client, roomKeyPrefix, opts...),
		messages: redisstore.NewRedisStore[string, model.Message](client, messageKeyPrefix, opts...),
		ids:      ids,
		logger:   logger.WithField("component", "timeline"),
		now:      time.Now,
	}
}

// Save 追加到房间时间线并按 ID 建立索引，缺失的 ID 与时间戳会被补全
func (s *Store) Save(ctx context.Context, m *model.Message) (*model.Message, error) {
	if m == nil || m.RoomID == "" {
		return nil, fmt.Errorf("timeline: %w: room id is required", store.ErrInvalidKey)
	}
	if m.ID == "" {
		id, err := s.ids.Generate()
		if err != nil {
			return nil, fmt.Errorf("timeline: generate message id: %w", err)
		}
		m.ID = id
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now()
	}

	if _, err := s.rooms.Append(ctx, m.RoomID, *m); err != nil {
		return nil, err
	}
	if err := s.messages.Set(ctx, m.ID, *m); err != nil {
		s.logger.WithField("message_id", m.ID).Errorf("Save: appended to room %s but id index write failed: %v", m.RoomID, err)
		return nil, err
	}
	s.logger.WithField("message_id", m.ID).Debugf("Save: room %s", m.RoomID)
	return m, nil
}

// FindByID 按 ID 获取消息，不存在返回 nil
func (s *Store) FindByID(ctx context.Context, id string) (*model.Message, error) {
	m, err := s.messages.Get(ctx, id)
	switch {
	case err == nil:
		return &m, nil
	case store.IsAbsent(err):
		if store.IsTypeMismatch(err) {
			s.logger.WithField("message_id", id).Warnf("FindByID: %v", err)
		}
		return nil, nil
	default:
		return nil, err
	}
}

// FindAllByID 一次批量读取，丢弃不存在的 ID；结果顺序与输入一致
func (s *Store) FindAllByID(ctx context.Context, ids []string) ([]model.Message, error) {
	found, err := s.messages.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make([]model.Message, 0, len(found))
	for _, id := range ids {
		if m, ok := found[id]; ok {
			result = append(result, m)
			delete(found, id)
		}
	}
	return result, nil
}

// FindByFileID 时间线没有按文件的索引，始终返回 nil
func (s *Store) FindByFileID(_ context.Context, fileID string) (*model.Message, error) {
	s.logger.WithField("file_id", fileID).Debugf("FindByFileID: no file index, returning absent")
	return nil, nil
}

// FindByRoomIDFiltered 读取整个房间，保留 IsDeleted 等于 isDeleted 且早于 before 的消息后分页
// Total 为过滤后的数量
func (s *Store) FindByRoomIDFiltered(ctx context.Context, roomID string, isDeleted bool, before time.Time, req model.PageRequest) (model.Page[model.Message], error) {
	if !req.Valid() {
		return model.Page[model.Message]{}, ErrInvalidPage
	}
	all, err := s.rooms.Range(ctx, roomID, 0, -1)
	if err != nil {
		return model.Page[model.Message]{}, err
	}

	filtered := make([]model.Message, 0, len(all))
	for _, m := range all {
		if m.IsDeleted == isDeleted && m.Timestamp.Before(before) {
			filtered = append(filtered, m)
		}
	}

	total := len(filtered)
	if req.Beyond(int64(total)) {
		return model.EmptyPage[model.Message](req, int64(total)), nil
	}
	start := req.Offset()
	end := min(start+req.Size, total)
	return model.Page[model.Message]{Items: filtered[start:end], Total: int64(total), Req: req}, nil
}

// CountRecentByRoomID 统计 since 之后未删除的消息数
func (s *Store) CountRecentByRoomID(ctx context.Context, roomID string, since time.Time) (int64, error) {
	all, err := s.rooms.Range(ctx, roomID, 0, -1)
	if err != nil {
		return 0, err
	}
	return countRecent(all, since), nil
}

// CountMessagesByRoomIDs 批量统计多个房间，单次 Pipeline 读取
// 结果按输入顺序返回，重复的房间只统计一次
func (s *Store) CountMessagesByRoomIDs(ctx context.Context, roomIDs []string, since time.Time) ([]model.RoomMessageCount, error) {
	unique := make([]string, 0, len(roomIDs))
	seen := make(map[string]struct{}, len(roomIDs))
	for _, id := range roomIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	rooms, err := s.rooms.BatchRange(ctx, unique)
	if err != nil {
		return nil, err
	}
	counts := make([]model.RoomMessageCount, 0, len(unique))
	for _, id := range unique {
		counts = append(counts, model.RoomMessageCount{RoomID: id, Count: countRecent(rooms[id], since)})
	}
	return counts, nil
}

func countRecent(messages []model.Message, since time.Time) int64 {
	var n int64
	for _, m := range messages {
		if !m.IsDeleted && m.Timestamp.After(since) {
			n++
		}
	}
	return n
}

// FindRecentByRoomID 从列表尾部分页：第 0 页为最新的 Size 条，页内按时间升序
// 超出范围返回空页，Total 仍为房间消息总数
func (s *Store) FindRecentByRoomID(ctx context.Context, roomID string, req model.PageRequest) (model.Page[model.Message], error) {
	if !req.Valid() {
		return model.Page[model.Message]{}, ErrInvalidPage
	}
	total, err := s.rooms.Len(ctx, roomID)
	if err != nil {
		return model.Page[model.Message]{}, err
	}
	if req.Beyond(total) {
		return model.EmptyPage[model.Message](req, total), nil
	}
	size := int64(req.Size)
	end := total - 1 - int64(req.Page)*size
	start := max(end-size+1, 0)

	items, err := s.rooms.Range(ctx, roomID, start, end)
	if err != nil {
		return model.Page[model.Message]{}, err
	}
	return model.Page[model.Message]{Items: items, Total: total, Req: req}, nil
}
