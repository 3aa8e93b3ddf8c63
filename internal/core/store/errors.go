package store

import (
	"errors"
	"fmt"
)

// 存储层错误定义
var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("key not found")

	// ErrTypeMismatch 存储值的类型标记与期望类型不一致
	ErrTypeMismatch = errors.New("stored value type mismatch")

	// ErrSerializationFailed 序列化失败
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrInvalidKey 无效的键
	ErrInvalidKey = errors.New("invalid key")
)

// StoreError 存储层错误包装
type StoreError struct {
	Op        string // 操作名称
	Key       string // 相关键
	StoreType string // 存储类型
	Err       error  // 原始错误
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s: %s key=%s: %v", e.StoreType, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %s: %v", e.StoreType, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError 创建存储错误
func NewStoreError(storeType, op, key string, err error) *StoreError {
	return &StoreError{
		Op:        op,
		Key:       key,
		StoreType: storeType,
		Err:       err,
	}
}

// IsNotFound 检查是否为 NotFound 错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTypeMismatch 检查是否为类型不匹配错误
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsAbsent 不存在或类型不匹配，调用方均按"未找到"处理
func IsAbsent(err error) bool {
	return IsNotFound(err) || IsTypeMismatch(err)
}
