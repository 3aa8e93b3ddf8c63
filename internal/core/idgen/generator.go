// Package idgen 生成消息、节点等实体的唯一标识
package idgen

// ID 类型前缀
const (
	PrefixNodeID    = "node_"
	PrefixMessageID = ""
)

// IDGenerator ID 生成器接口
type IDGenerator interface {
	Generate() (string, error)
}

// GeneratorFunc 函数适配器，便于测试中注入固定 ID
type GeneratorFunc func() (string, error)

// Generate 调用函数本身
func (f GeneratorFunc) Generate() (string, error) {
	return f()
}

// MustGenerate 生成 ID，失败时 panic
func MustGenerate(g IDGenerator) string {
	id, err := g.Generate()
	if err != nil {
		panic(err)
	}
	return id
}
