package ai

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"study_ai_backend/internal/config"
	"study_ai_backend/pkg/logger"
	"study_ai_backend/pkg/monitoring"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Completion 模型调用结果
type Completion struct {
	Content     string
	TotalTokens int
}

// CallOptions 每类工作流独立的调用参数，取值来自配置
type CallOptions struct {
	Workflow    string
	Temperature float32
	MaxTokens   int
	// JSONMode 强制模型输出合法JSON对象，用于结构化输出的重试
	JSONMode bool
}

// Invoker 模型调用的抽象，便于在测试中注入替身
type Invoker interface {
	Invoke(ctx context.Context, messages []Message, opts CallOptions) (Completion, error)
}

// Client 包装 OpenAI 兼容接口的客户端。进程启动时构造一次，显式注入编排层
type Client struct {
	mu    sync.RWMutex
	api   *openai.Client
	model string
}

func NewClient(cfg config.AIConfig) *Client {
	c := &Client{}
	c.apply(cfg)
	return c
}

func (c *Client) apply(cfg config.AIConfig) {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	c.mu.Lock()
	c.api = openai.NewClientWithConfig(apiCfg)
	c.model = cfg.Model
	c.mu.Unlock()
}

// UpdateConfig 配置热更新回调，重建底层客户端
func (c *Client) UpdateConfig(cfg config.AIConfig) {
	c.apply(cfg)
	logger.Log.Info("AI客户端配置已更新", zap.String("model", cfg.Model))
}

func (c *Client) Invoke(ctx context.Context, messages []Message, opts CallOptions) (Completion, error) {
	c.mu.RLock()
	api := c.api
	model := c.model
	c.mu.RUnlock()

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(messages),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil && isTransient(err) {
		// 瞬时故障退避后重试一次，再失败就向上抛
		time.Sleep(500 * time.Millisecond)
		resp, err = api.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		monitoring.LLMRequestCounter.WithLabelValues(opts.Workflow, "error").Inc()
		return Completion{}, &ProviderError{Op: opts.Workflow, Err: err, Retryable: isTransient(err)}
	}

	if len(resp.Choices) == 0 {
		monitoring.LLMRequestCounter.WithLabelValues(opts.Workflow, "empty").Inc()
		return Completion{}, &ProviderError{Op: opts.Workflow, Err: errors.New("model returned no choices")}
	}

	monitoring.LLMRequestCounter.WithLabelValues(opts.Workflow, "ok").Inc()
	monitoring.LLMTokenCounter.WithLabelValues(opts.Workflow).Add(float64(resp.Usage.TotalTokens))

	return Completion{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		var role string
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
