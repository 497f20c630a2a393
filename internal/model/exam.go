package model

import "time"

type ExamTargetLevel string

const (
	TargetGoal      ExamTargetLevel = "goal"
	TargetMainTopic ExamTargetLevel = "main_topic"
	TargetSubTopic  ExamTargetLevel = "sub_topic"
)

type ExamFlowType string

const (
	FlowPerQuestion ExamFlowType = "per_question"
	FlowBatch       ExamFlowType = "batch"
)

type ScoringMethod string

const (
	ScoringBinary      ScoringMethod = "binary"
	ScoringRubric      ScoringMethod = "rubric"
	ScoringRubricHeavy ScoringMethod = "rubric_heavy"
)

type ExamStatus string

const (
	ExamPending    ExamStatus = "pending"
	ExamInProgress ExamStatus = "in_progress"
	ExamEvaluating ExamStatus = "evaluating"
	ExamFinished   ExamStatus = "finished"
	ExamAborted    ExamStatus = "aborted"
)

type QuestionStatus string

const (
	QuestionGenerated QuestionStatus = "generated"
	QuestionAnswered  QuestionStatus = "answered"
	QuestionEvaluated QuestionStatus = "evaluated"
	QuestionSkipped   QuestionStatus = "skipped"
)

// ExamType 考试类型配置，随迁移播种，缺失视为配置错误
type ExamType struct {
	BaseModel
	Code                string          `gorm:"size:30;uniqueIndex;not null" json:"Code"`
	Name                string          `gorm:"size:100;not null" json:"Name"`
	TargetLevel         ExamTargetLevel `gorm:"size:20;not null" json:"TargetLevel"`
	FlowType            ExamFlowType    `gorm:"size:20;not null" json:"FlowType"`
	ScoringMethod       ScoringMethod   `gorm:"size:20;not null" json:"ScoringMethod"`
	DefaultQuestions    uint            `gorm:"not null" json:"DefaultQuestions"`
	MaxScorePerQuestion uint            `gorm:"not null" json:"MaxScorePerQuestion"`
	AllowPostChat       bool            `gorm:"default:false" json:"AllowPostChat"`
	IsActive            bool            `gorm:"default:true;index" json:"IsActive"`
}

func (ExamType) TableName() string {
	return "exam_types"
}

func (t *ExamType) MaxTotalScore() float64 {
	return float64(t.DefaultQuestions) * float64(t.MaxScorePerQuestion)
}

// ExamSession 一次考试会话。learning_goal / main_topic / sub_topic 三者有且仅有
// 一个非空，attempt_number 在 user+目标+exam_type 范围内单调递增
type ExamSession struct {
	BaseModel
	UserID         uint  `gorm:"index;not null" json:"UserId"`
	LearningGoalID *uint `gorm:"index" json:"LearningGoalId"`
	MainTopicID    *uint `gorm:"index" json:"MainTopicId"`
	SubTopicID     *uint `gorm:"index" json:"SubTopicId"`
	ExamTypeID     uint  `gorm:"index;not null" json:"ExamTypeId"`

	Status                ExamStatus `gorm:"size:20;default:'pending';index" json:"Status"`
	AttemptNumber         uint       `gorm:"not null" json:"AttemptNumber"`
	CurrentQuestionNumber uint       `gorm:"default:0" json:"CurrentQuestionNumber"`
	MaxQuestions          uint       `gorm:"default:0" json:"MaxQuestions"`
	Summary               string     `gorm:"type:text" json:"Summary"`
	// 开考时冻结的评分细则，之后主题上的细则变更不影响本场考试
	RubricSnapshot string `gorm:"type:json" json:"RubricSnapshot"`

	ExamType     *ExamType          `gorm:"foreignKey:ExamTypeID" json:"ExamType,omitempty"`
	LearningGoal *LearningGoal      `gorm:"foreignKey:LearningGoalID" json:"-"`
	MainTopic    *LearningMainTopic `gorm:"foreignKey:MainTopicID" json:"-"`
	SubTopic     *LearningSubTopic  `gorm:"foreignKey:SubTopicID" json:"-"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}

// HasSingleTarget 检查三个目标外键有且仅有一个被设置
func (s *ExamSession) HasSingleTarget() bool {
	n := 0
	if s.LearningGoalID != nil {
		n++
	}
	if s.MainTopicID != nil {
		n++
	}
	if s.SubTopicID != nil {
		n++
	}
	return n == 1
}

// ExamQuestion 按会话内 question_number 排序。binary 评分必须带 choices、
// correct_answer 和 explanation，其余评分方式必须都为空
type ExamQuestion struct {
	BaseModel
	SessionID      uint           `gorm:"not null;uniqueIndex:uq_exam_question_number,priority:1" json:"SessionId"`
	Status         QuestionStatus `gorm:"size:20;default:'generated';index" json:"Status"`
	QuestionNumber uint           `gorm:"not null;uniqueIndex:uq_exam_question_number,priority:2" json:"QuestionNumber"`
	Question       string         `gorm:"type:text;not null" json:"Question"`
	MaxScore       float64        `gorm:"not null" json:"MaxScore"`
	TokenCount     int            `gorm:"default:0" json:"TokenCount"`
	Choices        string         `gorm:"type:json" json:"Choices"`
	CorrectAnswer  string         `gorm:"size:5" json:"CorrectAnswer"`
	Explanation    string         `gorm:"type:text" json:"Explanation"`

	Answer     *ExamAnswer     `gorm:"foreignKey:QuestionID" json:"Answer,omitempty"`
	Evaluation *ExamEvaluation `gorm:"foreignKey:QuestionID" json:"Evaluation,omitempty"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}

type ExamAnswer struct {
	BaseModel
	QuestionID uint   `gorm:"uniqueIndex;not null" json:"QuestionId"`
	Answer     string `gorm:"type:text;not null" json:"Answer"`
	TokenCount int    `gorm:"default:0" json:"TokenCount"`
}

func (ExamAnswer) TableName() string {
	return "exam_answers"
}

type ExamEvaluation struct {
	BaseModel
	QuestionID     uint    `gorm:"uniqueIndex;not null" json:"QuestionId"`
	Score          float64 `gorm:"not null" json:"Score"`
	RubricSnapshot string  `gorm:"type:json" json:"RubricSnapshot"`
	DetailScores   string  `gorm:"type:json" json:"DetailScores"`
	Feedback       string  `gorm:"type:text" json:"Feedback"`
	TokenCount     int     `gorm:"default:0" json:"TokenCount"`
}

func (ExamEvaluation) TableName() string {
	return "exam_evaluations"
}

// ExamResult 会话结束时冻结的成绩快照
type ExamResult struct {
	BaseModel
	SessionID       uint    `gorm:"uniqueIndex;not null" json:"SessionId"`
	TotalScore      float64 `gorm:"not null" json:"TotalScore"`
	MaxScore        float64 `gorm:"not null" json:"MaxScore"`
	AccuracyRate    float64 `gorm:"not null" json:"AccuracyRate"`
	DurationSeconds int     `gorm:"default:0" json:"DurationSeconds"`
	UsedTokens      int64   `gorm:"default:0" json:"UsedTokens"`
	Report          string  `gorm:"type:text" json:"Report"`
}

func (ExamResult) TableName() string {
	return "exam_results"
}

type ExamSessionSlice struct {
	BaseModel
	SessionID uint       `gorm:"index;not null" json:"SessionId"`
	StartedAt time.Time  `gorm:"not null" json:"StartedAt"`
	EndedAt   *time.Time `json:"EndedAt"`
}

func (ExamSessionSlice) TableName() string {
	return "exam_session_slices"
}
