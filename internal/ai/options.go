package ai

import "study_ai_backend/internal/config"

// 工作流名称，同时作为监控指标的label
const (
	WorkflowQuestionGeneration = "question_generation"
	WorkflowScoring            = "scoring"
	WorkflowSummary            = "summary"
	WorkflowReport             = "report"
	WorkflowLecture            = "lecture"
)

// 未配置时的兜底参数
const (
	defaultTemperature float32 = 0.7
	defaultMaxTokens           = 2048
)

// OptionsFor 把配置里的工作流参数转成调用参数。JSON模式由调用方按需开启
func OptionsFor(cfg config.AIConfig, workflow string) CallOptions {
	var setting config.ModelSetting
	switch workflow {
	case WorkflowQuestionGeneration:
		setting = cfg.QuestionGeneration
	case WorkflowScoring:
		setting = cfg.Scoring
	case WorkflowSummary:
		setting = cfg.Summary
	case WorkflowReport:
		setting = cfg.Report
	case WorkflowLecture:
		setting = cfg.Lecture
	}

	opts := CallOptions{
		Workflow:    workflow,
		Temperature: setting.Temperature,
		MaxTokens:   setting.MaxTokens,
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	return opts
}
