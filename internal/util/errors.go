package util

import (
	"errors"
	"fmt"
)

var (
	ErrEmailRegistered  = errors.New("该邮箱已被注册")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConcurrencyConflict 序号分配时的锁超时或唯一约束冲突，整个事务可重试一次
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// StateError 在错误状态下调用了操作，属于请求级错误，边界层转换为 4xx
type StateError struct {
	Op  string
	Msg string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func NewStateError(op, format string, args ...interface{}) *StateError {
	return &StateError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ConfigurationError 缺失必须播种的配置记录（默认语言、考试类型），不可由用户恢复
type ConfigurationError struct {
	Key string
	Msg string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Key, e.Msg)
}

func NewConfigurationError(key, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Key: key, Msg: fmt.Sprintf(format, args...)}
}
