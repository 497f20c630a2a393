package repository

import (
	"time"

	"study_ai_backend/internal/model"
	"study_ai_backend/internal/util"

	"gorm.io/gorm"
)

type LectureRepository struct {
	DB *gorm.DB
}

func NewLectureRepository(db *gorm.DB) *LectureRepository {
	return &LectureRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库，编排层把多个写操作放进同一个事务时用
func (r *LectureRepository) WithTx(tx *gorm.DB) *LectureRepository {
	return &LectureRepository{DB: tx}
}

// CreateSession 在 user+sub_topic 范围内分配下一个 lecture_number 并建立进度游标。
// 同范围的旧会话全部清掉 can_continue，保证最多一条可续会话。
// 序号分配在锁内完成，撞到唯一索引说明并发竞争，映射成冲突错误交上层重试
func (r *LectureRepository) CreateSession(userID, subTopicID uint, topics []model.LectureTopic) (*model.LectureSession, error) {
	var session *model.LectureSession
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var maxNumber uint
		err := forUpdate(tx.Model(&model.LectureSession{})).
			Where("user_id = ? AND sub_topic_id = ?", userID, subTopicID).
			Select("COALESCE(MAX(lecture_number), 0)").
			Scan(&maxNumber).Error
		if err != nil {
			return err
		}

		if err := tx.Model(&model.LectureSession{}).
			Where("user_id = ? AND sub_topic_id = ? AND can_continue = ?", userID, subTopicID, true).
			Update("can_continue", false).Error; err != nil {
			return err
		}

		session = &model.LectureSession{
			UserID:        userID,
			SubTopicID:    subTopicID,
			LectureNumber: maxNumber + 1,
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}

		for _, topic := range topics {
			progress := model.LectureProgress{
				SessionID: session.ID,
				TopicID:   topic.ID,
				Order:     topic.DefaultOrder,
			}
			if err := tx.Create(&progress).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if isDuplicate(err) {
		return nil, util.ErrConcurrencyConflict
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *LectureRepository) FindSessionByID(id uint) (*model.LectureSession, error) {
	var session model.LectureSession
	err := r.DB.Preload("SubTopic").Preload("SubTopic.MainTopic").First(&session, id).Error
	return &session, err
}

// ContinuableSession 给定范围里唯一一条可续会话，没有就返回 ErrRecordNotFound
func (r *LectureRepository) ContinuableSession(userID, subTopicID uint) (*model.LectureSession, error) {
	var session model.LectureSession
	err := r.DB.Where("user_id = ? AND sub_topic_id = ? AND can_continue = ?", userID, subTopicID, true).
		First(&session).Error
	return &session, err
}

func (r *LectureRepository) SaveSession(session *model.LectureSession) error {
	return r.DB.Save(session).Error
}

// ---------- 讲义大纲 ----------

func (r *LectureRepository) FindTopics(subTopicID uint) ([]model.LectureTopic, error) {
	var topics []model.LectureTopic
	err := r.DB.Where("sub_topic_id = ?", subTopicID).Order("default_order").Find(&topics).Error
	return topics, err
}

// CreateTopics 大纲按子主题只生成一次。并发生成时后到的一方撞唯一索引，
// 上层改用已有大纲即可
func (r *LectureRepository) CreateTopics(topics []model.LectureTopic) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		for i := range topics {
			if err := tx.Create(&topics[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if isDuplicate(err) {
		return util.ErrConcurrencyConflict
	}
	return err
}

// ---------- 进度 ----------

// CurrentProgress 当前讲授条目，即 order 最小的未完成记录
func (r *LectureRepository) CurrentProgress(sessionID uint) (*model.LectureProgress, error) {
	var progress model.LectureProgress
	err := r.DB.Preload("Topic").
		Where("session_id = ? AND is_completed = ?", sessionID, false).
		Order("topic_order").
		First(&progress).Error
	return &progress, err
}

func (r *LectureRepository) ListProgress(sessionID uint) ([]model.LectureProgress, error) {
	var progress []model.LectureProgress
	err := r.DB.Preload("Topic").
		Where("session_id = ?", sessionID).
		Order("topic_order").
		Find(&progress).Error
	return progress, err
}

func (r *LectureRepository) CompleteProgress(progressID uint) error {
	return r.DB.Model(&model.LectureProgress{}).
		Where("id = ?", progressID).
		Update("is_completed", true).Error
}

// ---------- 日志 ----------

func (r *LectureRepository) AppendLog(log *model.LectureLog) error {
	return r.DB.Create(log).Error
}

// AppendExchange 问答成对落库并累计token。同一事务写入，不会留下
// 只有提问没有回答的半截记录
func (r *LectureRepository) AppendExchange(sessionID uint, question, answer string, tokens int) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model.LectureLog{
			SessionID: sessionID,
			Role:      model.LogRoleUser,
			Message:   question,
		}).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.LectureLog{
			SessionID:  sessionID,
			Role:       model.LogRoleAI,
			Message:    answer,
			TokenCount: tokens,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&model.LectureSession{}).
			Where("id = ?", sessionID).
			Update("used_tokens", gorm.Expr("used_tokens + ?", tokens)).Error
	})
}

// HasAILog 会话里是否已经有AI讲授记录
func (r *LectureRepository) HasAILog(sessionID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.LectureLog{}).
		Where("session_id = ? AND role = ?", sessionID, model.LogRoleAI).
		Count(&count).Error
	return count > 0, err
}

func (r *LectureRepository) Logs(sessionID uint) ([]model.LectureLog, error) {
	var logs []model.LectureLog
	err := r.DB.Where("session_id = ?", sessionID).Order("id").Find(&logs).Error
	return logs, err
}

// LogsAfter 水位线之后（不含）的日志，报告增量更新用
func (r *LectureRepository) LogsAfter(sessionID uint, afterLogID uint) ([]model.LectureLog, error) {
	var logs []model.LectureLog
	err := r.DB.Where("session_id = ? AND id > ?", sessionID, afterLogID).
		Order("id").Find(&logs).Error
	return logs, err
}

func (r *LectureRepository) LatestLog(sessionID uint) (*model.LectureLog, error) {
	var log model.LectureLog
	err := r.DB.Where("session_id = ?", sessionID).Order("id DESC").First(&log).Error
	return &log, err
}

// ---------- 摘要与报告 ----------

func (r *LectureRepository) UpdateSummary(sessionID uint, summary string) error {
	return r.DB.Model(&model.LectureSession{}).
		Where("id = ?", sessionID).
		Update("summary", summary).Error
}

// SaveReport 报告正文和水位线一起落库。水位线指向报告覆盖到的最后一条日志，
// 两个字段必须同时可见，否则下次更新会重复或漏掉日志
func (r *LectureRepository) SaveReport(sessionID uint, report string, lastLogID *uint) error {
	return r.DB.Model(&model.LectureSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"report":             report,
			"last_report_log_id": lastLogID,
		}).Error
}

// ---------- 计量 ----------

func (r *LectureRepository) AddTokens(sessionID uint, tokens int) error {
	return r.DB.Model(&model.LectureSession{}).
		Where("id = ?", sessionID).
		Update("used_tokens", gorm.Expr("used_tokens + ?", tokens)).Error
}

// ---------- 时间片 ----------

// OpenSlice 开一个新时间片。已有未关闭时间片时直接复用，不重复开
func (r *LectureRepository) OpenSlice(sessionID uint) (*model.LectureSessionSlice, error) {
	var existing model.LectureSessionSlice
	err := r.DB.Where("session_id = ? AND ended_at IS NULL", sessionID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	slice := &model.LectureSessionSlice{SessionID: sessionID, StartedAt: time.Now()}
	if err := r.DB.Create(slice).Error; err != nil {
		return nil, err
	}
	return slice, nil
}

// CloseSlice 关闭未结束的时间片并把时长累加到会话。没有打开的时间片时为空操作
func (r *LectureRepository) CloseSlice(sessionID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var slice model.LectureSessionSlice
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
		if err := tx.Save(&slice).Error; err != nil {
			return err
		}
		seconds := int(now.Sub(slice.StartedAt).Seconds())
		return tx.Model(&model.LectureSession{}).
			Where("id = ?", sessionID).
			Update("duration_seconds", gorm.Expr("duration_seconds + ?", seconds)).Error
	})
}

// MarkFinished 结束会话。canContinue 表示大纲未讲完、允许之后续讲
func (r *LectureRepository) MarkFinished(sessionID uint, canContinue bool) error {
	return r.DB.Model(&model.LectureSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"is_finished":  true,
			"can_continue": canContinue,
		}).Error
}
