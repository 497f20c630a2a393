package model

import "time"

// LogRole 讲义对话日志的角色标签
type LogRole string

const (
	LogRoleAI     LogRole = "ai"
	LogRoleUser   LogRole = "user"
	LogRoleSystem LogRole = "system"
)

// LectureSession 一次讲义会话。lecture_number 在 user+sub_topic 范围内单调递增，
// 同一范围内最多只有一条 can_continue=true 的会话
type LectureSession struct {
	BaseModel
	UserID          uint   `gorm:"not null;uniqueIndex:uq_lecture_scope_number,priority:1;index:idx_lecture_scope,priority:1" json:"UserId"`
	SubTopicID      uint   `gorm:"not null;uniqueIndex:uq_lecture_scope_number,priority:2;index:idx_lecture_scope,priority:2" json:"SubTopicId"`
	LectureNumber   uint   `gorm:"not null;uniqueIndex:uq_lecture_scope_number,priority:3" json:"LectureNumber"`
	Summary         string `gorm:"type:text" json:"Summary"`
	Report          string `gorm:"type:text" json:"Report"`
	LastReportLogID *uint  `json:"LastReportLogId"`
	UsedTokens      int64  `gorm:"default:0" json:"UsedTokens"`
	DurationSeconds int    `gorm:"default:0" json:"DurationSeconds"`
	IsFinished      bool   `gorm:"default:false;index" json:"IsFinished"`
	CanContinue     bool   `gorm:"default:false" json:"CanContinue"`

	SubTopic *LearningSubTopic `gorm:"foreignKey:SubTopicID" json:"-"`
}

func (LectureSession) TableName() string {
	return "lecture_sessions"
}

// LectureTopic 子主题下的讲义大纲条目，按子主题生成一次、多次会话复用
type LectureTopic struct {
	BaseModel
	SubTopicID   uint   `gorm:"not null;uniqueIndex:uq_lecture_topic_order,priority:1" json:"SubTopicId"`
	DefaultOrder int    `gorm:"not null;uniqueIndex:uq_lecture_topic_order,priority:2" json:"DefaultOrder"`
	Title        string `gorm:"size:200;not null" json:"Title"`
}

func (LectureTopic) TableName() string {
	return "lecture_topics"
}

// LectureProgress 会话内各大纲条目的完成游标，当前主题 = 最小 order 的未完成记录
type LectureProgress struct {
	BaseModel
	SessionID   uint `gorm:"not null;uniqueIndex:uq_lecture_progress,priority:1" json:"SessionId"`
	TopicID     uint `gorm:"not null;uniqueIndex:uq_lecture_progress,priority:2" json:"TopicId"`
	Order       int  `gorm:"column:topic_order;not null" json:"Order"`
	IsCompleted bool `gorm:"default:false" json:"IsCompleted"`

	Topic *LectureTopic `gorm:"foreignKey:TopicID" json:"Topic,omitempty"`
}

func (LectureProgress) TableName() string {
	return "lecture_progress"
}

// LectureLog 追加式对话日志
type LectureLog struct {
	BaseModel
	SessionID  uint    `gorm:"index;not null" json:"SessionId"`
	Role       LogRole `gorm:"size:10;not null" json:"Role"`
	Message    string  `gorm:"type:text" json:"Message"`
	TokenCount int     `gorm:"default:0" json:"TokenCount"`
}

func (LectureLog) TableName() string {
	return "lecture_logs"
}

// LectureSessionSlice 会话时间片。任意时刻每个会话最多一条 ended_at 为空的记录，
// 总时长为所有已关闭时间片之和
type LectureSessionSlice struct {
	BaseModel
	SessionID uint       `gorm:"index;not null" json:"SessionId"`
	StartedAt time.Time  `gorm:"not null" json:"StartedAt"`
	EndedAt   *time.Time `json:"EndedAt"`
}

func (LectureSessionSlice) TableName() string {
	return "lecture_session_slices"
}
