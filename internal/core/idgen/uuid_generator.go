package idgen

import (
	"github.com/google/uuid"
)

// UUIDGenerator 基于 UUID v7 的 ID 生成器
// v7 按时间有序，同一房间的消息 ID 与写入顺序基本一致；不需要跟踪已使用的 ID
type UUIDGenerator struct {
	prefix string
}

// NewUUIDGenerator 创建 UUID 生成器
func NewUUIDGenerator(prefix string) *UUIDGenerator {
	return &UUIDGenerator{
		prefix: prefix,
	}
}

// Generate 生成唯一 ID，v7 失败时回退到 v4
func (g *UUIDGenerator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return g.prefix + id.String(), nil
}

var _ IDGenerator = (*UUIDGenerator)(nil)
