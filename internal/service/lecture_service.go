package service

import (
	"context"
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

// LectureService 讲义会话编排：开讲、推进、闲聊、收尾、报告
type LectureService struct {
	LectureRepo  *repository.LectureRepository
	GoalRepo     *repository.LearningGoalRepository
	UserRepo     *repository.UserRepository
	LanguageRepo *repository.LanguageRepository
	StudyRepo    *repository.StudyRecordRepository
	Storage      *StorageService
	AI           ai.Invoker
	Cfg          *config.Config
	Redis        *redis.Client
}

func NewLectureService(
	lectureRepo *repository.LectureRepository,
	goalRepo *repository.LearningGoalRepository,
	userRepo *repository.UserRepository,
	languageRepo *repository.LanguageRepository,
	studyRepo *repository.StudyRecordRepository,
	storage *StorageService,
	invoker ai.Invoker,
	cfg *config.Config,
	rdb *redis.Client,
) *LectureService {
	return &LectureService{
		LectureRepo:  lectureRepo,
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

// LectureTurn 一次推进/闲聊后的返回内容
type LectureTurn struct {
	Session  *model.LectureSession   `json:"Session"`
	Progress []model.LectureProgress `json:"Progress,omitempty"`
	Message  string                  `json:"Message"`
	Finished bool                    `json:"Finished"`
}

// StartLecture 开始一次新讲义会话。大纲按子主题只生成一次，之后的会话复用
func (s *LectureService) StartLecture(ctx context.Context, userID, subTopicID uint) (*LectureTurn, error) {
	subTopic, lang, err := s.loadScope(userID, subTopicID)
	if err != nil {
		return nil, err
	}

	release, err := acquireGenerationGuard(ctx, s.Redis, "lecture_start", subTopicID)
	if err != nil {
		return nil, err
	}
	defer release()

	topics, err := s.ensureTopics(ctx, subTopic, lang)
	if err != nil {
		return nil, err
	}

	session, err := s.createSessionTx(userID, subTopic, topics)
	if err == util.ErrConcurrencyConflict {
		// 序号竞争重试一次
		session, err = s.createSessionTx(userID, subTopic, topics)
	}
	if err != nil {
		return nil, err
	}

	return s.lectureCurrentTopic(ctx, session, subTopic, lang)
}

// ContinueLecture 续讲。只有范围内唯一一条 can_continue 的会话可以续
func (s *LectureService) ContinueLecture(ctx context.Context, userID, subTopicID uint) (*LectureTurn, error) {
	subTopic, lang, err := s.loadScope(userID, subTopicID)
	if err != nil {
		return nil, err
	}

	session, err := s.LectureRepo.ContinuableSession(userID, subTopicID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.NewStateError("continue_lecture", "没有可以继续的讲义会话")
	}
	if err != nil {
		return nil, err
	}

	// 续讲重新打开时间片，结束标记复位
	session.IsFinished = false
	session.CanContinue = false
	if err := s.LectureRepo.SaveSession(session); err != nil {
		return nil, err
	}
	if _, err := s.LectureRepo.OpenSlice(session.ID); err != nil {
		return nil, err
	}

	return s.lectureCurrentTopic(ctx, session, subTopic, lang)
}

// AdvanceLecture 完成当前大纲条目并讲授下一条。没有下一条时会话讲完
func (s *LectureService) AdvanceLecture(ctx context.Context, userID, sessionID uint) (*LectureTurn, error) {
	session, subTopic, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinished {
		return nil, util.NewStateError("advance_lecture", "讲义会话已结束")
	}

	current, err := s.LectureRepo.CurrentProgress(sessionID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if err == nil {
		// 只有真正讲授过（有AI日志）才算完成当前条目，否则重新讲授它
		delivered, derr := s.LectureRepo.HasAILog(sessionID)
		if derr != nil {
			return nil, derr
		}
		if delivered {
			if err := s.LectureRepo.CompleteProgress(current.ID); err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.LectureRepo.CurrentProgress(sessionID); err == gorm.ErrRecordNotFound {
		// 大纲全部讲完
		if err := s.finishSession(session, subTopic, false); err != nil {
			return nil, err
		}
		progress, _ := s.LectureRepo.ListProgress(sessionID)
		return &LectureTurn{Session: session, Progress: progress, Finished: true}, nil
	} else if err != nil {
		return nil, err
	}

	return s.lectureCurrentTopic(ctx, session, subTopic, lang)
}

// HandleChat 讲义内问答
func (s *LectureService) HandleChat(ctx context.Context, userID, sessionID uint, input string) (*LectureTurn, error) {
	session, subTopic, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinished {
		return nil, util.NewStateError("lecture_chat", "讲义会话已结束")
	}

	logs, err := s.LectureRepo.Logs(sessionID)
	if err != nil {
		return nil, err
	}
	history := ai.BuildHistory(ai.LectureChatHistory{Summary: session.Summary, Logs: logs})
	messages := ai.LectureChatPrompt(subTopic.Title, lang, history, input)

	completion, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowLecture))
	if err != nil {
		return nil, err
	}

	// 模型成功后才落库，提问和回答成对写入
	if err := s.LectureRepo.AppendExchange(sessionID, input, completion.Content, completion.TotalTokens); err != nil {
		return nil, err
	}
	s.refreshSummary(ctx, session, lang)
	return &LectureTurn{Session: session, Message: completion.Content}, nil
}

// EndLecture 结束会话并关闭时间片。大纲没讲完时保留续讲资格
func (s *LectureService) EndLecture(userID, sessionID uint) (*model.LectureSession, error) {
	session, subTopic, _, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinished {
		return session, nil
	}

	_, err = s.LectureRepo.CurrentProgress(sessionID)
	canContinue := err == nil
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if err := s.finishSession(session, subTopic, canContinue); err != nil {
		return nil, err
	}
	return session, nil
}

// GetOrUpdateReport 生成或增量更新会话报告。水位线之后没有新日志时直接返回
// 既有报告，不触发模型调用
func (s *LectureService) GetOrUpdateReport(ctx context.Context, userID, sessionID uint) (*model.LectureSession, error) {
	session, _, lang, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsFinished {
		return nil, util.NewStateError("lecture_report", "讲义会话未结束，无法生成报告")
	}

	release, err := acquireGenerationGuard(ctx, s.Redis, "lecture_report", sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	var history []ai.Message
	update := false
	if session.Report == "" {
		logs, err := s.LectureRepo.Logs(sessionID)
		if err != nil {
			return nil, err
		}
		if len(logs) == 0 {
			return nil, util.NewStateError("lecture_report", "会话没有任何对话记录")
		}
		history = ai.BuildHistory(ai.LectureReportHistory{Logs: logs})
	} else {
		watermark := uint(0)
		if session.LastReportLogID != nil {
			watermark = *session.LastReportLogID
		}
		diff, err := s.LectureRepo.LogsAfter(sessionID, watermark)
		if err != nil {
			return nil, err
		}
		if len(diff) == 0 {
			return session, nil
		}
		history = ai.BuildHistory(ai.LectureReportUpdateHistory{Report: session.Report, DiffLogs: diff})
		update = true
	}

	messages := ai.LectureReportPrompt(lang, history, update)
	completion, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowReport))
	if err != nil {
		return nil, err
	}

	latest, err := s.LectureRepo.LatestLog(sessionID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}
	var watermark *uint
	if err == nil {
		watermark = &latest.ID
	}

	if err := s.LectureRepo.SaveReport(sessionID, completion.Content, watermark); err != nil {
		return nil, err
	}
	if err := s.LectureRepo.AddTokens(sessionID, completion.TotalTokens); err != nil {
		return nil, err
	}

	session.Report = completion.Content
	session.LastReportLogID = watermark
	return session, nil
}

// ExportReport 把报告导出到对象存储，返回访问地址
func (s *LectureService) ExportReport(ctx context.Context, userID, sessionID uint) (string, error) {
	session, _, _, err := s.loadSession(userID, sessionID)
	if err != nil {
		return "", err
	}
	if session.Report == "" {
		return "", util.NewStateError("export_report", "报告尚未生成")
	}

	filename := fmt.Sprintf("reports/lecture_%d_%d_%s.md", userID, sessionID, uuid.NewString()[:8])
	reader := strings.NewReader(session.Report)
	return s.Storage.Upload(ctx, filename, reader, int64(len(session.Report)), "text/markdown")
}

func (s *LectureService) GetSession(userID, sessionID uint) (*LectureTurn, error) {
	session, _, _, err := s.loadSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	progress, err := s.LectureRepo.ListProgress(sessionID)
	if err != nil {
		return nil, err
	}
	return &LectureTurn{Session: session, Progress: progress, Finished: session.IsFinished}, nil
}

func (s *LectureService) GetLogs(userID, sessionID uint) ([]model.LectureLog, error) {
	if _, _, _, err := s.loadSession(userID, sessionID); err != nil {
		return nil, err
	}
	return s.LectureRepo.Logs(sessionID)
}

// ---------- 内部 ----------

func (s *LectureService) loadScope(userID, subTopicID uint) (*model.LearningSubTopic, *model.Language, error) {
	subTopic, err := s.GoalRepo.FindSubTopicByID(subTopicID)
	if err != nil {
		return nil, nil, err
	}
	if subTopic.MainTopic == nil || subTopic.MainTopic.UserID != userID {
		return nil, nil, util.ErrPermissionDenied
	}

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, nil, err
	}
	lang, err := preferredLanguage(user, s.LanguageRepo)
	if err != nil {
		return nil, nil, err
	}
	return subTopic, lang, nil
}

func (s *LectureService) loadSession(userID, sessionID uint) (*model.LectureSession, *model.LearningSubTopic, *model.Language, error) {
	session, err := s.LectureRepo.FindSessionByID(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, nil, util.ErrPermissionDenied
	}
	subTopic, lang, err := s.loadScope(userID, session.SubTopicID)
	if err != nil {
		return nil, nil, nil, err
	}
	return session, subTopic, lang, nil
}

// ensureTopics 取子主题的讲义大纲，没有就生成。并发生成时输掉的一方改用已有大纲
func (s *LectureService) ensureTopics(ctx context.Context, subTopic *model.LearningSubTopic, lang *model.Language) ([]model.LectureTopic, error) {
	topics, err := s.LectureRepo.FindTopics(subTopic.ID)
	if err != nil {
		return nil, err
	}
	if len(topics) > 0 {
		return topics, nil
	}

	messages := ai.LectureOutlinePrompt(subTopic.Title, lang)
	opts := ai.OptionsFor(s.Cfg.AI, ai.WorkflowLecture)

	var items []ai.LectureTopicItem
	if _, err := invokeParsed(ctx, s.AI, messages, opts, func(c ai.Completion) error {
		parsed, perr := ai.ParseLectureTopics(c.Content)
		if perr != nil {
			return perr
		}
		items = parsed
		return nil
	}); err != nil {
		return nil, err
	}

	topics = make([]model.LectureTopic, 0, len(items))
	for i, item := range items {
		topics = append(topics, model.LectureTopic{
			SubTopicID:   subTopic.ID,
			DefaultOrder: i + 1,
			Title:        item.Title,
		})
	}
	if err := s.LectureRepo.CreateTopics(topics); err != nil {
		if err == util.ErrConcurrencyConflict {
			return s.LectureRepo.FindTopics(subTopic.ID)
		}
		return nil, err
	}
	return topics, nil
}

// lectureCurrentTopic 生成当前大纲条目的讲义内容并落日志、记摘要
func (s *LectureService) lectureCurrentTopic(ctx context.Context, session *model.LectureSession, subTopic *model.LearningSubTopic, lang *model.Language) (*LectureTurn, error) {
	current, err := s.LectureRepo.CurrentProgress(session.ID)
	if err == gorm.ErrRecordNotFound {
		return nil, util.NewStateError("lecture", "没有待讲授的大纲条目")
	}
	if err != nil {
		return nil, err
	}

	history := ai.BuildHistory(ai.LectureGenerationHistory{Summary: session.Summary})
	messages := ai.LecturePrompt(subTopic.Title, current.Topic.Title, lang, history)

	completion, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowLecture))
	if err != nil {
		return nil, err
	}

	if err := s.recordAIMessage(ctx, session, lang, completion); err != nil {
		return nil, err
	}

	progress, err := s.LectureRepo.ListProgress(session.ID)
	if err != nil {
		return nil, err
	}
	return &LectureTurn{Session: session, Progress: progress, Message: completion.Content}, nil
}

// recordAIMessage 落AI日志、累计token、增量更新摘要
func (s *LectureService) recordAIMessage(ctx context.Context, session *model.LectureSession, lang *model.Language, completion ai.Completion) error {
	err := s.LectureRepo.DB.Transaction(func(tx *gorm.DB) error {
		lectureRepo := s.LectureRepo.WithTx(tx)
		if err := lectureRepo.AppendLog(&model.LectureLog{
			SessionID:  session.ID,
			Role:       model.LogRoleAI,
			Message:    completion.Content,
			TokenCount: completion.TotalTokens,
		}); err != nil {
			return err
		}
		return lectureRepo.AddTokens(session.ID, completion.TotalTokens)
	})
	if err != nil {
		return err
	}

	s.refreshSummary(ctx, session, lang)
	return nil
}

// refreshSummary 增量更新会话摘要。失败只告警不回滚，下一轮还有机会补上
func (s *LectureService) refreshSummary(ctx context.Context, session *model.LectureSession, lang *model.Language) {
	logs, err := s.LectureRepo.Logs(session.ID)
	if err != nil {
		logger.Log.Warn("讲义摘要更新失败", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	history := ai.BuildHistory(ai.SummaryUpdateHistory{Summary: session.Summary, Logs: logs})
	messages := ai.LectureSummaryPrompt(lang, history)

	summary, err := s.AI.Invoke(ctx, messages, ai.OptionsFor(s.Cfg.AI, ai.WorkflowSummary))
	if err != nil {
		logger.Log.Warn("讲义摘要更新失败", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	if err := s.LectureRepo.UpdateSummary(session.ID, summary.Content); err != nil {
		logger.Log.Warn("讲义摘要写入失败", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	if err := s.LectureRepo.AddTokens(session.ID, summary.TotalTokens); err != nil {
		logger.Log.Warn("讲义摘要写入失败", zap.Uint("session_id", session.ID), zap.Error(err))
		return
	}
	session.Summary = summary.Content
}

// finishSession 关时间片、结束会话、推子主题状态、关学习记录，同一事务完成
func (s *LectureService) finishSession(session *model.LectureSession, subTopic *model.LearningSubTopic, canContinue bool) error {
	err := s.LectureRepo.DB.Transaction(func(tx *gorm.DB) error {
		lectureRepo := s.LectureRepo.WithTx(tx)
		if err := lectureRepo.CloseSlice(session.ID); err != nil {
			return err
		}
		if err := lectureRepo.MarkFinished(session.ID, canContinue); err != nil {
			return err
		}

		if !canContinue && subTopic.Status != model.TopicCompleted {
			if err := s.GoalRepo.WithTx(tx).UpdateSubTopicStatus(subTopic.ID, model.TopicCompleted); err != nil {
				return err
			}
		}

		studyRepo := s.StudyRepo.WithTx(tx)
		record, err := studyRepo.FindByLectureSession(session.ID)
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if record.EndTime == nil {
			return studyRepo.Close(record.ID, time.Now(), 0)
		}
		return nil
	})
	if err != nil {
		return err
	}
	session.IsFinished = true
	session.CanContinue = canContinue
	return nil
}

// createSessionTx 建会话、开时间片、开学习记录、推子主题状态，全部放进一个
// 事务。任何一步失败都不会留下半截会话
func (s *LectureService) createSessionTx(userID uint, subTopic *model.LearningSubTopic, topics []model.LectureTopic) (*model.LectureSession, error) {
	var session *model.LectureSession
	err := s.LectureRepo.DB.Transaction(func(tx *gorm.DB) error {
		lectureRepo := s.LectureRepo.WithTx(tx)

		var err error
		session, err = lectureRepo.CreateSession(userID, subTopic.ID, topics)
		if err != nil {
			return err
		}
		if _, err := lectureRepo.OpenSlice(session.ID); err != nil {
			return err
		}

		record := &model.StudySession{
			UserID:           userID,
			LearningGoalID:   subTopic.MainTopic.LearningGoalID,
			MainTopicID:      &subTopic.MainTopicID,
			SubTopicID:       &subTopic.ID,
			LectureSessionID: &session.ID,
			SessionType:      model.StudyLecture,
			StartTime:        time.Now(),
		}
		if err := s.StudyRepo.WithTx(tx).Create(record); err != nil {
			return err
		}

		if subTopic.Status == model.TopicNotStarted {
			if err := s.GoalRepo.WithTx(tx).UpdateSubTopicStatus(subTopic.ID, model.TopicInProgress); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}
