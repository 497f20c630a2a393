package model

import (
	"errors"
	"time"
)

type StudySessionType string

const (
	StudyLecture StudySessionType = "lec"
	StudyTest    StudySessionType = "test"
	StudyReview  StudySessionType = "review"
)

// StudySession 学习记录。讲义/考试会话各对应一条，用于按学习目标聚合学习时长
type StudySession struct {
	BaseModel
	UserID           uint             `gorm:"index;not null" json:"UserId"`
	LearningGoalID   uint             `gorm:"index;not null" json:"LearningGoalId"`
	MainTopicID      *uint            `gorm:"index" json:"MainTopicId"`
	SubTopicID       *uint            `gorm:"index" json:"SubTopicId"`
	LectureSessionID *uint            `gorm:"uniqueIndex" json:"LectureSessionId"`
	ExamSessionID    *uint            `gorm:"uniqueIndex" json:"ExamSessionId"`
	SessionType      StudySessionType `gorm:"size:10;not null" json:"SessionType"`
	TotalScore       float64          `gorm:"default:0" json:"TotalScore"`
	Note             string           `gorm:"type:text" json:"Note"`
	StartTime        time.Time        `gorm:"not null" json:"StartTime"`
	EndTime          *time.Time       `json:"EndTime"`
	// 小时数，end_time 写入时计算
	TimeSpent float64 `json:"TimeSpent"`
}

func (StudySession) TableName() string {
	return "study_sessions"
}

// Validate 校验类型与关联会话的对应关系
func (s *StudySession) Validate() error {
	if s.SessionType == StudyLecture {
		if s.LectureSessionID == nil {
			return errors.New("lecture type requires lecture_session")
		}
		if s.ExamSessionID != nil {
			return errors.New("lecture type must not have exam_session")
		}
	}
	if s.SessionType == StudyTest {
		if s.ExamSessionID == nil {
			return errors.New("test type requires exam_session")
		}
		if s.LectureSessionID != nil {
			return errors.New("test type must not have lecture_session")
		}
	}
	return nil
}
