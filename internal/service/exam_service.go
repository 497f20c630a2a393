package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"study_ai_backend/internal/ai"
	"study_ai_backend/internal/config"
	"study_ai_backend/internal/model"
	"study_ai_backend/internal/repository"
	"study_ai_backend/internal/util"
	"study_ai_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExamService 考试会话编排：开考、出题、作答、评分、结算、报告
type ExamService struct {
	ExamRepo     *repository.ExamRepository
	GoalRepo     *repository.LearningGoalRepository
	UserRepo     *repository.UserRepository
	LanguageRepo *repository.LanguageRepository
	StudyRepo    *repository.StudyRecordRepository
	Storage      *StorageService
	AI           ai.Invoker
	Cfg          *config.Config
	Redis        *redis.Client
}

func NewExamService(
	examRepo *repository.ExamRepository,
	goalRepo *repository.LearningGoalRepository,
	userRepo *repository.UserRepository,
	languageRepo *repository.LanguageRepository,
	studyRepo *repository.StudyRecordRepository,
	storage *StorageService,
	invoker ai.Invoker,
	cfg *config.Config,
	rdb *redis.Client,
) *ExamService {
	return &ExamService{
		ExamRepo:     examRepo,
		GoalRepo:     goalRepo,
		UserRepo:     userRepo,
		LanguageRepo: languageRepo,
		StudyRepo:    studyRepo,
		Storage:      storage,
		AI:           invoker,
		Cfg:          cfg,
		Redis:        rdb,
	}
}

// StartExamRequest 开考请求
type StartExamRequest struct {
	ExamTypeCode string `json:"examTypeCode" binding:"required"`
	TargetID     uint   `json:"targetId" binding:"required"`
}

// examScope 会话目标的解析结果，出题和评分细则都基于它
type examScope struct {
	examType *model.ExamType
	goal     *model.LearningGoal
	main     *model.LearningMainTopic
	sub      *model.LearningSubTopic
	context  ai.ExamContext
}

// StartExam 创建考试会话。评分细则在开考时沿 子主题→主主题→目标 链路解析，
// 三级都没有就现场生成并回写到目标层级，然后冻结进会话快照
func (s *ExamService) StartExam(ctx context.Context, userID uint, req StartExamRequest) (*model.ExamSession, error) {
	examType, err := s.ExamRepo.FindTypeByCode(req.ExamTypeCode)
	if err == gorm.ErrRecordNotFound {
		return nil, util.NewConfigurationError("exam_type", "考试类型 %s 不存在或未启用", req.ExamTypeCode)
	}
	if err != nil {
		return nil, err
	}

	scope, err := s.resolveScope(userID, examType, req.TargetID)
	if err != nil {
		return nil, err
	}

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	lang, err := preferredLanguage(user, s.LanguageRepo)
	if err != nil {
		return nil, err
	}

	session := &model.ExamSession{
		UserID:       userID,
		ExamTypeID:   examType.ID,
		Status:       model.ExamPending,
		MaxQuestions: examType.DefaultQuestions,
	}
	switch examType.TargetLevel {
	case model.TargetSubTopic:
		session.SubTopicID = &scope.sub.ID
	case model.TargetMainTopic:
		session.MainTopicID = &scope.main.ID
	default:
		session.LearningGoalID = &scope.goal.ID
	}

	if examType.ScoringMethod != model.ScoringBinary {
		rubricJSON, err := s.resolveRubric(ctx, scope, lang)
		if err != nil {
			return nil, err
		}
		session.RubricSnapshot = rubricJSON
	}

	err = s.createSessionTx(userID, scope, session)
	if err == util.ErrConcurrencyConflict {
		err = s.createSessionTx(userID, scope, session)
	}
	if err != nil {
		return nil, err
	}

	session.ExamType = examType
	return session, nil
}

// createSessionTx 会话、时间片、学习记录同一事务落库，
// 就绪后才把会话推到 in_progress
func (s *ExamService) createSessionTx(userID uint, scope *examScope, session *model.ExamSession) error {
	session.ID = 0
	session.Status = model.ExamPending
	return s.ExamRepo.DB.Transaction(func(tx *gorm.DB) error {
		examRepo := s.ExamRepo.WithTx(tx)
		if err := examRepo.CreateSession(session); err != nil {
			return err
		}
		if _, err := examRepo.OpenSlice(session.ID); err != nil {
			return err
		}

		record := &model.StudySession{
			UserID:         userID,
			LearningGoalID: scope.goal.ID,
			ExamSessionID:  &session.ID,
			SessionType:    model.StudyTest,
			StartTime:      time.Now(),
		}
		if scope.main != nil {
			record.MainTopicID = &scope.main.ID
		}
		if scope.sub != nil {
			record.SubTopicID = &scope.sub.ID
		}
		if err := s.StudyRepo.WithTx(tx).Create(record); err != nil {
			return err
		}

		if err := examRepo.UpdateSessionStatus(session.ID, model.ExamInProgress); err != nil {
			return err
		}
		session.Status = model.ExamInProgress
		return nil
	})
}

// GenerateQuestion 生成下一题。题号连续，出完为止
func (s *ExamService) GenerateQuestion(ctx context.Context, userID, sessionID uint) (*model.ExamQuestion, error) {
	session, scope, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.ExamInProgress {
		return nil, util.NewStateError("generate_question", "考试会话状态为 %s，无法出题", session.Status)
	}
	if session.CurrentQuestionNumber >= session.MaxQuestions {
		return nil, util.NewStateError("generate_question", "题目数量已达上限")
	}

	// 逐题流程必须先评完当前题才能出下一题
	if scope.examType.FlowType == model.FlowPerQuestion {
		latest, err := s.ExamRepo.LatestQuestion(sessionID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return nil, err
		}
		if err == nil && latest.Status != model.QuestionEvaluated && latest.Status != model.QuestionSkipped {
			return nil, util.NewStateError("generate_question", "当前题目尚未完成评分")
		}
	}

	release, err := acquireGenerationGuard(ctx, s.Redis, "exam_question", sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	history := ai.BuildHistory(ai.ExamQuestionHistory{Summary: session.Summary})
	opts := ai.OptionsFor(s.Cfg.AI, ai.WorkflowQuestionGeneration)

	question := &model.ExamQuestion{
		Status:   model.QuestionGenerated,
		MaxScore: float64(scope.examType.MaxScorePerQuestion),
	}

	switch scope.examType.ScoringMethod {
	case model.ScoringBinary:
		messages := ai.MCQPrompt(scope.examType.TargetLevel, scope.context, lang, history)
		var mcq *ai.MCQ
		completion, err := invokeParsed(ctx, s.AI, messages, opts, func(c ai.Completion) error {
			parsed, perr := ai.ParseMCQ(c.Content)
			if perr != nil {
				return perr
			}
			mcq = parsed
			return nil
		})
		if err != nil {
			return nil, err
		}
		choicesJSON, err := json.Marshal(mcq.Choices)
		if err != nil {
			return nil, err
		}
		question.Question = mcq.Question
		question.Choices = string(choicesJSON)
		question.CorrectAnswer = mcq.Answer
		question.Explanation = mcq.Explanation
		question.TokenCount = completion.TotalTokens

	case model.ScoringRubricHeavy:
		messages := ai.ComprehensivePrompt(scope.context, lang, history)
		completion, err := s.AI.Invoke(ctx, messages, opts)
		if err != nil {
			return nil, err
		}
		question.Question = completion.Content
		question.TokenCount = completion.TotalTokens

	default:
		messages := ai.WrittenTaskPrompt(scope.examType.TargetLevel, scope.context, lang, history)
		completion, err := s.AI.Invoke(ctx, messages, opts)
		if err != nil {
			return nil, err
		}
		question.Question = completion.Content
		question.TokenCount = completion.TotalTokens
	}

	err = s.ExamRepo.CreateQuestion(sessionID, question)
	if err == util.ErrConcurrencyConflict {
		err = s.ExamRepo.CreateQuestion(sessionID, question)
	}
	if err != nil {
		return nil, err
	}
	session.CurrentQuestionNumber = question.QuestionNumber

	s.updateSummary(ctx, session, lang, ai.QuestionControlSummaryHistory{
		Summary:        session.Summary,
		LatestQuestion: question.Question,
	}, "Update the running summary with the newly generated question.")

	return question, nil
}

// SubmitAnswer 提交当前题答案并立即评分。binary 在本地比对，不过模型
func (s *ExamService) SubmitAnswer(ctx context.Context, userID, sessionID uint, answerText string) (*model.ExamEvaluation, error) {
	session, scope, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.ExamInProgress {
		return nil, util.NewStateError("submit_answer", "考试会话状态为 %s，无法作答", session.Status)
	}

	question, err := s.ExamRepo.LatestQuestion(sessionID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.NewStateError("submit_answer", "当前没有待作答的题目")
	}
	if err != nil {
		return nil, err
	}
	if question.Status != model.QuestionGenerated {
		return nil, util.NewStateError("submit_answer", "题目状态为 %s，无法作答", question.Status)
	}

	answer := &model.ExamAnswer{QuestionID: question.ID, Answer: answerText}
	if err := s.ExamRepo.SaveAnswer(answer); err != nil {
		return nil, err
	}

	return s.evaluate(ctx, session, scope, lang, question, answerText)
}

// evaluate 按评分方式给单题打分并更新运行摘要
func (s *ExamService) evaluate(ctx context.Context, session *model.ExamSession, scope *examScope, lang *model.Language, question *model.ExamQuestion, answerText string) (*model.ExamEvaluation, error) {
	evaluation := &model.ExamEvaluation{QuestionID: question.ID}

	if scope.examType.ScoringMethod == model.ScoringBinary {
		if answerText == question.CorrectAnswer {
			evaluation.Score = question.MaxScore
		}
		evaluation.Feedback = question.Explanation
	} else {
		history := ai.BuildHistory(ai.EvaluationHistory{Question: question.Question})
		opts := ai.OptionsFor(s.Cfg.AI, ai.WorkflowScoring)
		messages := ai.EvaluationPrompt(session.RubricSnapshot, question.MaxScore, lang, history, answerText)

		var parsed *ai.Evaluation
		completion, err := invokeParsed(ctx, s.AI, messages, opts, func(c ai.Completion) error {
			result, perr := ai.ParseEvaluation(c.Content, question.MaxScore)
			if perr != nil {
				return perr
			}
			parsed = result
			return nil
		})
		if err != nil {
			return nil, err
		}

		detailJSON, err := json.Marshal(parsed.DetailScores)
		if err != nil {
			return nil, err
		}
		evaluation.Score = parsed.TotalScore
		evaluation.Feedback = parsed.Feedback
		evaluation.DetailScores = string(detailJSON)
		evaluation.RubricSnapshot = session.RubricSnapshot
		evaluation.TokenCount = completion.TotalTokens
	}

	if err := s.ExamRepo.SaveEvaluation(evaluation); err != nil {
		return nil, err
	}

	s.updateSummary(ctx, session, lang, ai.LearningStateSummaryHistory{
		Summary:  session.Summary,
		Question: question.Question,
		Answer:   answerText,
		Feedback: evaluation.Feedback,
	}, "Update the running summary with the latest question, answer and evaluation.")

	return evaluation, nil
}

// FinalizeExam 结算。未作答的题按0分跳过，成绩快照生成后会话冻结
func (s *ExamService) FinalizeExam(ctx context.Context, userID, sessionID uint) (*model.ExamResult, error) {
	session, scope, _, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	// 重复结算直接返回既有成绩
	if existing, err := s.ExamRepo.FindResult(sessionID); err == nil {
		return existing, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if session.Status != model.ExamInProgress && session.Status != model.ExamEvaluating {
		return nil, util.NewStateError("finalize_exam", "考试会话状态为 %s，无法结算", session.Status)
	}

	questions, err := s.ExamRepo.Questions(sessionID)
	if err != nil {
		return nil, err
	}

	totalScore := 0.0
	var usedTokens int64
	for _, q := range questions {
		usedTokens += int64(q.TokenCount)
		if q.Answer != nil {
			usedTokens += int64(q.Answer.TokenCount)
		}
		if q.Evaluation != nil {
			totalScore += q.Evaluation.Score
			usedTokens += int64(q.Evaluation.TokenCount)
			continue
		}
		if err := s.ExamRepo.UpdateQuestionStatus(q.ID, model.QuestionSkipped); err != nil {
			return nil, err
		}
	}

	if err := s.ExamRepo.CloseSlice(sessionID); err != nil {
		return nil, err
	}
	duration, err := s.ExamRepo.SumSliceSeconds(sessionID)
	if err != nil {
		return nil, err
	}

	maxScore := scope.examType.MaxTotalScore()
	result := &model.ExamResult{
		SessionID:       sessionID,
		TotalScore:      totalScore,
		MaxScore:        maxScore,
		AccuracyRate:    totalScore / maxScore,
		DurationSeconds: duration,
		UsedTokens:      usedTokens,
	}
	if err := s.ExamRepo.CreateResult(result); err != nil {
		if err == util.ErrConcurrencyConflict {
			return s.ExamRepo.FindResult(sessionID)
		}
		return nil, err
	}

	if err := s.ExamRepo.UpdateSessionStatus(sessionID, model.ExamFinished); err != nil {
		return nil, err
	}
	session.Status = model.ExamFinished

	if record, err := s.StudyRepo.FindByExamSession(sessionID); err == nil && record.EndTime == nil {
		if err := s.StudyRepo.Close(record.ID, time.Now(), totalScore); err != nil {
			return nil, err
		}
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	return result, nil
}

func (s *ExamService) GetResult(userID, sessionID uint) (*model.ExamResult, error) {
	session, _, _, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.ExamFinished {
		return nil, util.NewStateError("exam_result", "考试尚未结算")
	}
	return s.ExamRepo.FindResult(sessionID)
}

// GenerateReport 生成考试报告。已有报告直接返回，不重复调用模型
func (s *ExamService) GenerateReport(ctx context.Context, userID, sessionID uint) (*model.ExamResult, error) {
	session, _, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.ExamFinished {
		return nil, util.NewStateError("exam_report", "考试尚未结算，无法生成报告")
	}

	result, err := s.ExamRepo.FindResult(sessionID)
	if err != nil {
		return nil, err
	}
	if result.Report != "" {
		return result, nil
	}

	release, err := acquireGenerationGuard(ctx, s.Redis, "exam_report", sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	history := ai.BuildHistory(ai.ExamReportHistory{Summary: session.Summary, Result: result})
	messages := ai.ExamReportPrompt(lang, history)

	completion, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowReport))
	if err != nil {
		return nil, err
	}

	result.Report = completion.Content
	result.UsedTokens += int64(completion.TotalTokens)
	if err := s.ExamRepo.SaveResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

// ExportReport 把考试报告导出到对象存储，返回访问地址
func (s *ExamService) ExportReport(ctx context.Context, userID, sessionID uint) (string, error) {
	if _, _, _, err := s.loadSession(userID, sessionID); err != nil {
		return "", err
	}

	result, err := s.ExamRepo.FindResult(sessionID)
	if err != nil {
		return "", err
	}
	if result.Report == "" {
		return "", util.NewStateError("export_report", "报告尚未生成")
	}

	filename := fmt.Sprintf("reports/exam_%d_%d_%s.md", userID, sessionID, uuid.NewString()[:8])
	reader := strings.NewReader(result.Report)
	return s.Storage.Upload(ctx, filename, reader, int64(len(result.Report)), "text/markdown")
}

// PostChat 考后答疑。只有配置允许且已结算的会话可用，对话不落库
func (s *ExamService) PostChat(ctx context.Context, userID, sessionID uint, input string) (string, error) {
	session, scope, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return "", err
	}
	if !scope.examType.AllowPostChat {
		return "", util.NewStateError("post_chat", "该考试类型不支持考后答疑")
	}
	if session.Status != model.ExamFinished {
		return "", util.NewStateError("post_chat", "考试尚未结算")
	}

	result, err := s.ExamRepo.FindResult(sessionID)
	if err != nil {
		return "", err
	}

	history := ai.BuildHistory(ai.ExamReportHistory{Summary: session.Summary, Result: result})
	messages := ai.ExamChatPrompt(lang, history, input)

	completion, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowLecture))
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// AbortExam 中止考试。已结算的会话不能中止
func (s *ExamService) AbortExam(userID, sessionID uint) error {
	session, _, _, err := s.loadSession(userID, sessionID)
	if err != nil {
		return err
	}
	if session.Status == model.ExamFinished {
		return util.NewStateError("abort_exam", "考试已结算，无法中止")
	}
	if session.Status == model.ExamAborted {
		return nil
	}

	if err := s.ExamRepo.CloseSlice(sessionID); err != nil {
		return err
	}
	if err := s.ExamRepo.UpdateSessionStatus(sessionID, model.ExamAborted); err != nil {
		return err
	}

	if record, err := s.StudyRepo.FindByExamSession(sessionID); err == nil && record.EndTime == nil {
		return s.StudyRepo.Close(record.ID, time.Now(), 0)
	} else if err != nil && err != gorm.ErrRecordNotFound {
		return err
	}
	return nil
}

func (s *ExamService) ListTypes() ([]model.ExamType, error) {
	return s.ExamRepo.ListTypes()
}

func (s *ExamService) ListSessions(userID uint) ([]model.ExamSession, error) {
	return s.ExamRepo.ListSessions(userID)
}

func (s *ExamService) GetSession(userID, sessionID uint) (*model.ExamSession, error) {
	session, _, _, err := s.loadSession(userID, sessionID)
	return session, err
}

func (s *ExamService) GetQuestions(userID, sessionID uint) ([]model.ExamQuestion, error) {
	if _, _, _, err := s.loadSession(userID, sessionID); err != nil {
		return nil, err
	}
	return s.ExamRepo.Questions(sessionID)
}

// ---------- 内部 ----------

func (s *ExamService) loadSession(userID, sessionID uint) (*model.ExamSession, *examScope, *model.Language, error) {
	session, err := s.ExamRepo.FindSessionByID(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, nil, util.ErrPermissionDenied
	}
	if session.ExamType == nil {
		return nil, nil, nil, util.NewConfigurationError("exam_type", "会话 %d 的考试类型缺失", sessionID)
	}

	var targetID uint
	switch session.ExamType.TargetLevel {
	case model.TargetSubTopic:
		targetID = *session.SubTopicID
	case model.TargetMainTopic:
		targetID = *session.MainTopicID
	default:
		targetID = *session.LearningGoalID
	}
	scope, err := s.resolveScope(userID, session.ExamType, targetID)
	if err != nil {
		return nil, nil, nil, err
	}

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, nil, nil, err
	}
	lang, err := preferredLanguage(user, s.LanguageRepo)
	if err != nil {
		return nil, nil, nil, err
	}
	return session, scope, lang, nil
}

// resolveScope 按考试类型的目标层级解析目标实体并装配出题上下文
func (s *ExamService) resolveScope(userID uint, examType *model.ExamType, targetID uint) (*examScope, error) {
	scope := &examScope{examType: examType}

	switch examType.TargetLevel {
	case model.TargetSubTopic:
		sub, err := s.GoalRepo.FindSubTopicByID(targetID)
		if err != nil {
			return nil, err
		}
		if sub.MainTopic == nil || sub.MainTopic.UserID != userID {
			return nil, util.ErrPermissionDenied
		}
		scope.sub = sub
		scope.main = sub.MainTopic
		scope.goal = sub.MainTopic.LearningGoal
		scope.context = ai.ExamContext{
			GoalTitle:      scope.goal.Title,
			MainTopicTitle: scope.main.Title,
			SubTopicTitle:  sub.Title,
		}

	case model.TargetMainTopic:
		main, err := s.GoalRepo.FindMainTopicByID(targetID)
		if err != nil {
			return nil, err
		}
		if main.UserID != userID {
			return nil, util.ErrPermissionDenied
		}
		scope.main = main
		scope.goal = main.LearningGoal
		titles := make([]string, 0, len(main.SubTopics))
		for _, sub := range main.SubTopics {
			titles = append(titles, sub.Title)
		}
		scope.context = ai.ExamContext{
			GoalTitle:      scope.goal.Title,
			MainTopicTitle: main.Title,
			SubTopics:      titles,
		}

	default:
		goal, err := s.GoalRepo.FindGoalByID(userID, targetID)
		if err != nil {
			return nil, err
		}
		scope.goal = goal
		titles := make([]string, 0, len(goal.MainTopics))
		for _, main := range goal.MainTopics {
			titles = append(titles, main.Title)
		}
		scope.context = ai.ExamContext{
			GoalTitle:  goal.Title,
			MainTopics: titles,
		}
	}

	if scope.goal == nil {
		return nil, util.NewConfigurationError("learning_goal", "目标 %d 的学习目标关联缺失", targetID)
	}
	return scope, nil
}

// 评分细则总分上限。目标级综合测试100分，主题/子主题20分
const (
	rubricCeilingGoal  = 100
	rubricCeilingTopic = 20
)

type rubricCandidate struct {
	raw     string
	ceiling float64
}

// resolveRubric 沿 子主题→主主题→目标 链路找第一份可用的细则，
// 全部缺失时现场生成并回写到考试目标所在层级
func (s *ExamService) resolveRubric(ctx context.Context, scope *examScope, lang *model.Language) (string, error) {
	var chain []rubricCandidate
	switch scope.examType.TargetLevel {
	case model.TargetSubTopic:
		chain = []rubricCandidate{
			{scope.sub.RubricSchema, rubricCeilingTopic},
			{scope.main.RubricSchema, rubricCeilingTopic},
			{scope.goal.RubricSchema, rubricCeilingGoal},
		}
	case model.TargetMainTopic:
		chain = []rubricCandidate{
			{scope.main.RubricSchema, rubricCeilingTopic},
			{scope.goal.RubricSchema, rubricCeilingGoal},
		}
	default:
		chain = []rubricCandidate{
			{scope.goal.RubricSchema, rubricCeilingGoal},
		}
	}

	for _, link := range chain {
		if link.raw == "" {
			continue
		}
		if _, err := ai.ParseRubricSchema(link.raw, link.ceiling); err != nil {
			// 存量细则坏了就跳过，继续沿链路找
			logger.Log.Warn("存量评分细则校验失败", zap.Error(err))
			continue
		}
		return link.raw, nil
	}

	return s.generateRubric(ctx, scope, lang)
}

// generateRubric 生成细则并回写到考试目标所在层级
func (s *ExamService) generateRubric(ctx context.Context, scope *examScope, lang *model.Language) (string, error) {
	ceiling := float64(rubricCeilingTopic)
	if scope.examType.TargetLevel == model.TargetGoal {
		ceiling = rubricCeilingGoal
	}

	messages := ai.RubricSchemaPrompt(scope.examType.TargetLevel, scope.context, ceiling, lang)
	opts := ai.OptionsFor(s.Cfg.AI, ai.WorkflowQuestionGeneration)

	var schema *ai.RubricSchema
	if _, err := invokeParsed(ctx, s.AI, messages, opts, func(c ai.Completion) error {
		parsed, perr := ai.ParseRubricSchema(c.Content, ceiling)
		if perr != nil {
			return perr
		}
		schema = parsed
		return nil
	}); err != nil {
		return "", err
	}
	normalized, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}
	rubricJSON := string(normalized)

	var targetID uint
	switch scope.examType.TargetLevel {
	case model.TargetSubTopic:
		targetID = scope.sub.ID
	case model.TargetMainTopic:
		targetID = scope.main.ID
	default:
		targetID = scope.goal.ID
	}
	if err := s.GoalRepo.SaveRubric(scope.examType.TargetLevel, targetID, rubricJSON); err != nil {
		return "", err
	}
	return rubricJSON, nil
}

// updateSummary 运行摘要更新失败只告警，不影响主流程
func (s *ExamService) updateSummary(ctx context.Context, session *model.ExamSession, lang *model.Language, builder ai.HistoryBuilder, instruction string) {
	history := ai.BuildHistory(builder)
	messages := ai.ExamSummaryPrompt(lang, history, instruction)

	completion, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowSummary))
	if err != nil {
		logger.Log.Warn("考试摘要更新失败", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	if err := s.ExamRepo.UpdateSummary(session.ID, completion.Content); err != nil {
		logger.Log.Warn("考试摘要写入失败", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	session.Summary = completion.Content
}
