package model

// TopicStatus 主题进度状态
type TopicStatus string

const (
	TopicNotStarted TopicStatus = "not_started"
	TopicInProgress TopicStatus = "in_progress"
	TopicCompleted  TopicStatus = "completed"
)

// Category 学习目标分类，is_global 为系统内置分类
type Category struct {
	BaseModel
	OwnerID  *uint  `gorm:"index" json:"OwnerId"`
	Name     string `gorm:"size:100;not null" json:"Name"`
	IsGlobal bool   `gorm:"default:false;index" json:"IsGlobal"`
}

func (Category) TableName() string {
	return "categories"
}

// DraftLearningGoal 学习目标草稿。AI 生成的大纲原文保存在 raw_outline，
// 确认后才转换为正式的目标/主题记录
type DraftLearningGoal struct {
	BaseModel
	UserID       uint   `gorm:"index;not null" json:"UserId"`
	CategoryID   *uint  `gorm:"index" json:"CategoryId"`
	Title        string `gorm:"size:200;not null" json:"Title"`
	CurrentLevel string `gorm:"type:text" json:"CurrentLevel"`
	TargetLevel  string `gorm:"type:text" json:"TargetLevel"`
	Description  string `gorm:"type:text" json:"Description"`
	RawOutline   string `gorm:"type:json" json:"RawOutline"`
	IsFinalized  bool   `gorm:"default:false;index" json:"IsFinalized"`
}

func (DraftLearningGoal) TableName() string {
	return "draft_learning_goals"
}

// swagger:model LearningGoal
type LearningGoal struct {
	BaseModel
	UserID       uint   `gorm:"index;not null" json:"UserId"`
	CategoryID   *uint  `gorm:"index" json:"CategoryId"`
	DraftID      *uint  `json:"DraftId"`
	Title        string `gorm:"size:200;not null" json:"Title"`
	CurrentLevel string `gorm:"type:text" json:"CurrentLevel"`
	TargetLevel  string `gorm:"type:text" json:"TargetLevel"`
	Description  string `gorm:"type:text" json:"Description"`
	// 评分细则快照，JSON 序列化的 ai.RubricSchema，可为空
	RubricSchema string `gorm:"type:json" json:"RubricSchema"`

	MainTopics []LearningMainTopic `gorm:"foreignKey:LearningGoalID" json:"MainTopics,omitempty"`
}

func (LearningGoal) TableName() string {
	return "learning_goals"
}

type LearningMainTopic struct {
	BaseModel
	UserID         uint        `gorm:"index;not null" json:"UserId"`
	LearningGoalID uint        `gorm:"index;not null" json:"LearningGoalId"`
	Title          string      `gorm:"size:200;not null" json:"Title"`
	RubricSchema   string      `gorm:"type:json" json:"RubricSchema"`
	Status         TopicStatus `gorm:"size:20;default:'not_started';index" json:"Status"`

	LearningGoal *LearningGoal      `gorm:"foreignKey:LearningGoalID" json:"-"`
	SubTopics    []LearningSubTopic `gorm:"foreignKey:MainTopicID" json:"SubTopics,omitempty"`
}

func (LearningMainTopic) TableName() string {
	return "learning_main_topics"
}

type LearningSubTopic struct {
	BaseModel
	MainTopicID  uint        `gorm:"index;not null" json:"MainTopicId"`
	Title        string      `gorm:"size:200;not null" json:"Title"`
	RubricSchema string      `gorm:"type:json" json:"RubricSchema"`
	Status       TopicStatus `gorm:"size:20;default:'not_started';index" json:"Status"`

	MainTopic *LearningMainTopic `gorm:"foreignKey:MainTopicID" json:"-"`
}

func (LearningSubTopic) TableName() string {
	return "learning_sub_topics"
}
