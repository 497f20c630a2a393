package ai

import (
	"errors"
	"fmt"
)

// ProviderError 模型服务调用失败（网络、认证、限流）。瞬时故障可重试
type ProviderError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error [%s]: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedResponseError 模型输出不是合法JSON
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// SchemaValidationError 模型输出与期望的结构不符。Path 指向违反约束的字段
type SchemaValidationError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed at %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

func schemaErr(path, expected, actual string) *SchemaValidationError {
	return &SchemaValidationError{Path: path, Expected: expected, Actual: actual}
}

// IsContentError 判断错误是否是模型输出内容问题（JSON坏掉或结构不符）。
// 这类错误重新生成一次有机会恢复，调用故障则不行
func IsContentError(err error) bool {
	var malformed *MalformedResponseError
	var schema *SchemaValidationError
	return errors.As(err, &malformed) || errors.As(err, &schema)
}
