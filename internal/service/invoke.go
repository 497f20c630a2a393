package service

import (
	"context"

	"study_ai_backend/internal/ai"
	"study_ai_backend/pkg/logger"

	"go.uber.org/zap"
)

// invokeParsed 调模型并解析结构化输出。输出内容不合规时按JSON模式重新生成
// 一次，仍失败才上抛。调用故障不在此处重试，客户端自己处理瞬时错误
func invokeParsed(ctx context.Context, invoker ai.Invoker, messages []ai.Message, opts ai.CallOptions, parse func(ai.Completion) error) (ai.Completion, error) {
	opts.JSONMode = true

	completion, err := invoker.Invoke(ctx, messages, opts)
	if err != nil {
		return completion, err
	}
	perr := parse(completion)
	if perr == nil {
		return completion, nil
	}
	if !ai.IsContentError(perr) {
		return completion, perr
	}

	logger.Log.Warn("模型输出解析失败，重新生成一次",
		zap.String("workflow", opts.Workflow), zap.Error(perr))

	completion, err = invoker.Invoke(ctx, messages, opts)
	if err != nil {
		return completion, err
	}
	if err := parse(completion); err != nil {
		return completion, err
	}
	return completion, nil
}
