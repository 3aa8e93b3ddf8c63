package store

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// =============================================================================
// 带类型标记的 JSON 编解码
// =============================================================================

// TypeNamer 由值类型实现，提供稳定的类型标记
// 未实现时使用 Go 类型名（去掉指针）
type TypeNamer interface {
	StoreTypeName() string
}

// Envelope 存储在后端的值格式：{"@type": "...", "data": {...}}
type Envelope struct {
	Type string          `json:"@type"`
	Data json.RawMessage `json:"data"`
}

// TypeNameOf 返回 V 的类型标记
func TypeNameOf[V any]() string {
	return typeName(reflect.TypeOf((*V)(nil)).Elem())
}

func typeNameOfValue(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	return typeName(t)
}

// typeName 指针与值类型共用同一标记
func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n, ok := reflect.New(t).Interface().(TypeNamer); ok {
		return n.StoreTypeName()
	}
	return t.String()
}

// Marshal 序列化值并附带类型标记
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	out, err := json.Marshal(Envelope{Type: typeNameOfValue(v), Data: data})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return out, nil
}

// Unmarshal 反序列化并校验类型标记
// 格式错误与标记不一致都返回 ErrTypeMismatch
func Unmarshal[V any](raw []byte) (V, error) {
	var zero V
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return zero, fmt.Errorf("%w: not a typed envelope", ErrTypeMismatch)
	}
	if want := TypeNameOf[V](); env.Type != want {
		return zero, fmt.Errorf("%w: stored %s, want %s", ErrTypeMismatch, env.Type, want)
	}
	var value V
	if err := json.Unmarshal(env.Data, &value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return value, nil
}

// PeekType 读取类型标记而不解码数据
func PeekType(raw []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return "", fmt.Errorf("%w: not a typed envelope", ErrTypeMismatch)
	}
	return env.Type, nil
}
