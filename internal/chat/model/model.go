// Package model 定义聊天状态层的领域对象
package model

import "time"

// Session 用户会话
// 值带滑动 TTL，每次 Save 重置；用户索引集合不过期
type Session struct {
	SessionID    string            `json:"session_id"`
	UserID       string            `json:"user_id"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
}

func (Session) StoreTypeName() string { return "chat.Session" }

// RateLimit 客户端限流窗口，生命周期由 ExpiresAt 决定
type RateLimit struct {
	ClientID    string    `json:"client_id"`
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"window_start"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (RateLimit) StoreTypeName() string { return "chat.RateLimit" }

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// Message 聊天消息
// 同时写入房间时间线和按 ID 索引，两次写入之间不保证原子性
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"room_id"`
	SenderID  string      `json:"sender_id,omitempty"`
	Type      MessageType `json:"type,omitempty"`
	Content   string      `json:"content,omitempty"`
	FileID    string      `json:"file_id,omitempty"`
	Mentions  []string    `json:"mentions,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	IsDeleted bool        `json:"is_deleted"`
}

func (Message) StoreTypeName() string { return "chat.Message" }

// RoomMessageCount 房间近期消息数
type RoomMessageCount struct {
	RoomID string `json:"room_id"`
	Count  int64  `json:"count"`
}

// PageRequest 分页参数，Page 从 0 开始
type PageRequest struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Offset 当前页第一个元素的偏移
func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Beyond 当前页是否完全落在 total 个元素之外
// 先比较页号再计算偏移，避免 Page*Size 溢出
func (p PageRequest) Beyond(total int64) bool {
	if total <= 0 {
		return true
	}
	return int64(p.Page) > (total-1)/int64(p.Size)
}

// Valid 页号非负且页大小为正
func (p PageRequest) Valid() bool {
	return p.Page >= 0 && p.Size > 0
}

// Page 分页结果，Total 为满足条件的元素总数
type Page[T any] struct {
	Items []T         `json:"items"`
	Total int64       `json:"total"`
	Req   PageRequest `json:"request"`
}

// EmptyPage 空页，保留总数
func EmptyPage[T any](req PageRequest, total int64) Page[T] {
	return Page[T]{Items: []T{}, Total: total, Req: req}
}
