package repository

import (
	"time"

	"study_ai_backend/internal/model"
	"study_ai_backend/internal/util"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库
func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

// ---------- 考试类型 ----------

func (r *ExamRepository) FindTypeByCode(code string) (*model.ExamType, error) {
	var examType model.ExamType
	err := r.DB.Where("code = ? AND is_active = ?", code, true).First(&examType).Error
	return &examType, err
}

func (r *ExamRepository) FindTypeByID(id uint) (*model.ExamType, error) {
	var examType model.ExamType
	err := r.DB.First(&examType, id).Error
	return &examType, err
}

func (r *ExamRepository) ListTypes() ([]model.ExamType, error) {
	var types []model.ExamType
	err := r.DB.Where("is_active = ?", true).Order("id").Find(&types).Error
	return types, err
}

// ---------- 会话 ----------

// targetScope 按目标层级生成范围条件，attempt_number 的作用域
func targetScope(tx *gorm.DB, session *model.ExamSession) *gorm.DB {
	q := tx.Where("user_id = ? AND exam_type_id = ?", session.UserID, session.ExamTypeID)
	switch {
	case session.SubTopicID != nil:
		return q.Where("sub_topic_id = ?", *session.SubTopicID)
	case session.MainTopicID != nil:
		return q.Where("main_topic_id = ?", *session.MainTopicID)
	default:
		return q.Where("learning_goal_id = ?", *session.LearningGoalID)
	}
}

// CreateSession 锁内取 user+目标+exam_type 范围的最大 attempt_number 并加一。
// 三个目标外键必须有且仅有一个被设置
func (r *ExamRepository) CreateSession(session *model.ExamSession) error {
	if !session.HasSingleTarget() {
		return util.NewConfigurationError("exam_session", "考试目标外键必须有且仅有一个")
	}
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var maxAttempt uint
		err := targetScope(forUpdate(tx.Model(&model.ExamSession{})), session).
			Select("COALESCE(MAX(attempt_number), 0)").
			Scan(&maxAttempt).Error
		if err != nil {
			return err
		}
		session.AttemptNumber = maxAttempt + 1
		return tx.Create(session).Error
	})
	if isDuplicate(err) {
		return util.ErrConcurrencyConflict
	}
	return err
}

func (r *ExamRepository) FindSessionByID(id uint) (*model.ExamSession, error) {
	var session model.ExamSession
	err := r.DB.Preload("ExamType").
		Preload("LearningGoal").
		Preload("MainTopic").
		Preload("SubTopic").
		First(&session, id).Error
	return &session, err
}

func (r *ExamRepository) SaveSession(session *model.ExamSession) error {
	return r.DB.Save(session).Error
}

func (r *ExamRepository) UpdateSessionStatus(sessionID uint, status model.ExamStatus) error {
	return r.DB.Model(&model.ExamSession{}).
		Where("id = ?", sessionID).
		Update("status", status).Error
}

func (r *ExamRepository) UpdateSummary(sessionID uint, summary string) error {
	return r.DB.Model(&model.ExamSession{}).
		Where("id = ?", sessionID).
		Update("summary", summary).Error
}

func (r *ExamRepository) ListSessions(userID uint) ([]model.ExamSession, error) {
	var sessions []model.ExamSession
	err := r.DB.Preload("ExamType").
		Where("user_id = ?", userID).
		Order("id DESC").
		Find(&sessions).Error
	return sessions, err
}

// ---------- 题目 ----------

// CreateQuestion 锁会话行后分配下一个 question_number，并同步会话上的当前题号。
// 题号连续性由锁保证，唯一索引兜底
func (r *ExamRepository) CreateQuestion(sessionID uint, question *model.ExamQuestion) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var session model.ExamSession
		if err := forUpdate(tx).First(&session, sessionID).Error; err != nil {
			return err
		}

		var maxNumber uint
		err := tx.Model(&model.ExamQuestion{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(question_number), 0)").
			Scan(&maxNumber).Error
		if err != nil {
			return err
		}

		question.SessionID = sessionID
		question.QuestionNumber = maxNumber + 1
		if err := tx.Create(question).Error; err != nil {
			return err
		}

		return tx.Model(&model.ExamSession{}).
			Where("id = ?", sessionID).
			Update("current_question_number", question.QuestionNumber).Error
	})
	if isDuplicate(err) {
		return util.ErrConcurrencyConflict
	}
	return err
}

func (r *ExamRepository) FindQuestionByID(id uint) (*model.ExamQuestion, error) {
	var question model.ExamQuestion
	err := r.DB.Preload("Answer").Preload("Evaluation").First(&question, id).Error
	return &question, err
}

// LatestQuestion 会话中题号最大的题
func (r *ExamRepository) LatestQuestion(sessionID uint) (*model.ExamQuestion, error) {
	var question model.ExamQuestion
	err := r.DB.Preload("Answer").Preload("Evaluation").
		Where("session_id = ?", sessionID).
		Order("question_number DESC").
		First(&question).Error
	return &question, err
}

func (r *ExamRepository) Questions(sessionID uint) ([]model.ExamQuestion, error) {
	var questions []model.ExamQuestion
	err := r.DB.Preload("Answer").Preload("Evaluation").
		Where("session_id = ?", sessionID).
		Order("question_number").
		Find(&questions).Error
	return questions, err
}

func (r *ExamRepository) UpdateQuestionStatus(questionID uint, status model.QuestionStatus) error {
	return r.DB.Model(&model.ExamQuestion{}).
		Where("id = ?", questionID).
		Update("status", status).Error
}

// ---------- 作答与评分 ----------

// SaveAnswer 一题一答，重复提交撞唯一索引映射为冲突
func (r *ExamRepository) SaveAnswer(answer *model.ExamAnswer) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(answer).Error; err != nil {
			return err
		}
		return tx.Model(&model.ExamQuestion{}).
			Where("id = ?", answer.QuestionID).
			Update("status", model.QuestionAnswered).Error
	})
	if isDuplicate(err) {
		return util.ErrConcurrencyConflict
	}
	return err
}

func (r *ExamRepository) SaveEvaluation(evaluation *model.ExamEvaluation) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(evaluation).Error; err != nil {
			return err
		}
		return tx.Model(&model.ExamQuestion{}).
			Where("id = ?", evaluation.QuestionID).
			Update("status", model.QuestionEvaluated).Error
	})
	if isDuplicate(err) {
		return util.ErrConcurrencyConflict
	}
	return err
}

// ---------- 成绩 ----------

func (r *ExamRepository) CreateResult(result *model.ExamResult) error {
	err := r.DB.Create(result).Error
	if isDuplicate(err) {
		return util.ErrConcurrencyConflict
	}
	return err
}

func (r *ExamRepository) FindResult(sessionID uint) (*model.ExamResult, error) {
	var result model.ExamResult
	err := r.DB.Where("session_id = ?", sessionID).First(&result).Error
	return &result, err
}

func (r *ExamRepository) SaveResult(result *model.ExamResult) error {
	return r.DB.Save(result).Error
}

// ---------- 时间片 ----------

func (r *ExamRepository) OpenSlice(sessionID uint) (*model.ExamSessionSlice, error) {
	var existing model.ExamSessionSlice
	err := r.DB.Where("session_id = ? AND ended_at IS NULL", sessionID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	slice := &model.ExamSessionSlice{SessionID: sessionID, StartedAt: time.Now()}
	if err := r.DB.Create(slice).Error; err != nil {
		return nil, err
	}
	return slice, nil
}

func (r *ExamRepository) CloseSlice(sessionID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var slice model.ExamSessionSlice
		err := forUpdate(tx).
			Where("session_id = ? AND ended_at IS NULL", sessionID).
			First(&slice).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now()
		slice.EndedAt = &now
		return tx.Save(&slice).Error
	})
}

// SumSliceSeconds 所有已关闭时间片的总秒数
func (r *ExamRepository) SumSliceSeconds(sessionID uint) (int, error) {
	var slices []model.ExamSessionSlice
	err := r.DB.Where("session_id = ? AND ended_at IS NOT NULL", sessionID).Find(&slices).Error
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range slices {
		total += int(s.EndedAt.Sub(s.StartedAt).Seconds())
	}
	return total, nil
}
