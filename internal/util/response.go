package util

import (
	"errors"
	"net/http"

	"study_ai_backend/internal/ai"
	"study_ai_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageResponse 分页响应结构
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// RenderError 按错误分类转换为对应的HTTP响应
func RenderError(c *gin.Context, err error) {
	var stateErr *StateError
	var cfgErr *ConfigurationError
	var schemaErr *ai.SchemaValidationError
	var malformedErr *ai.MalformedResponseError
	var providerErr *ai.ProviderError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c)
	case errors.Is(err, ErrPermissionDenied):
		Forbidden(c)
	case errors.As(err, &stateErr):
		Error(c, http.StatusConflict, stateErr.Msg)
	case errors.Is(err, ErrConcurrencyConflict):
		Error(c, http.StatusConflict, "操作冲突，请重试")
	case errors.As(err, &cfgErr):
		logger.Log.Error("configuration error", zap.Error(err))
		InternalServerError(c)
	case errors.As(err, &schemaErr), errors.As(err, &malformedErr):
		logger.Log.Warn("AI响应校验失败", zap.Error(err))
		Error(c, http.StatusBadGateway, "生成失败，请重试")
	case errors.As(err, &providerErr):
		logger.Log.Warn("AI服务调用失败", zap.Error(err))
		Error(c, http.StatusServiceUnavailable, "AI服务暂不可用，请稍后重试")
	default:
		LogInternalError(c, err)
	}
}
