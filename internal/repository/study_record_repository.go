package repository

import (
	"time"

	"study_ai_backend/internal/model"

	"gorm.io/gorm"
)

type StudyRecordRepository struct {
	DB *gorm.DB
}

func NewStudyRecordRepository(db *gorm.DB) *StudyRecordRepository {
	return &StudyRecordRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库
func (r *StudyRecordRepository) WithTx(tx *gorm.DB) *StudyRecordRepository {
	return &StudyRecordRepository{DB: tx}
}

func (r *StudyRecordRepository) Create(record *model.StudySession) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return r.DB.Create(record).Error
}

// Close 写入结束时间并折算学习时长（小时）
func (r *StudyRecordRepository) Close(recordID uint, endTime time.Time, totalScore float64) error {
	var record model.StudySession
	if err := r.DB.First(&record, recordID).Error; err != nil {
		return err
	}
	record.EndTime = &endTime
	record.TimeSpent = endTime.Sub(record.StartTime).Hours()
	record.TotalScore = totalScore
	return r.DB.Save(&record).Error
}

func (r *StudyRecordRepository) FindByLectureSession(lectureSessionID uint) (*model.StudySession, error) {
	var record model.StudySession
	err := r.DB.Where("lecture_session_id = ?", lectureSessionID).First(&record).Error
	return &record, err
}

func (r *StudyRecordRepository) FindByExamSession(examSessionID uint) (*model.StudySession, error) {
	var record model.StudySession
	err := r.DB.Where("exam_session_id = ?", examSessionID).First(&record).Error
	return &record, err
}

func (r *StudyRecordRepository) ListByGoal(userID, goalID uint) ([]model.StudySession, error) {
	var records []model.StudySession
	err := r.DB.Where("user_id = ? AND learning_goal_id = ?", userID, goalID).
		Order("id DESC").Find(&records).Error
	return records, err
}

// TotalHoursByGoal 按学习目标聚合已结束记录的学习时长
func (r *StudyRecordRepository) TotalHoursByGoal(userID, goalID uint) (float64, error) {
	var total float64
	err := r.DB.Model(&model.StudySession{}).
		Where("user_id = ? AND learning_goal_id = ? AND end_time IS NOT NULL", userID, goalID).
		Select("COALESCE(SUM(time_spent), 0)").
		Scan(&total).Error
	return total, err
}
