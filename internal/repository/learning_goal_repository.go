package repository

import (
	"study_ai_backend/internal/model"

	"gorm.io/gorm"
)

type LearningGoalRepository struct {
	DB *gorm.DB
}

func NewLearningGoalRepository(db *gorm.DB) *LearningGoalRepository {
	return &LearningGoalRepository{DB: db}
}

// WithTx 返回绑定到事务的仓库
func (r *LearningGoalRepository) WithTx(tx *gorm.DB) *LearningGoalRepository {
	return &LearningGoalRepository{DB: tx}
}

// ---------- 草稿 ----------

func (r *LearningGoalRepository) CreateDraft(draft *model.DraftLearningGoal) error {
	return r.DB.Create(draft).Error
}

func (r *LearningGoalRepository) FindDraftByID(userID, draftID uint) (*model.DraftLearningGoal, error) {
	var draft model.DraftLearningGoal
	err := r.DB.Where("id = ? AND user_id = ?", draftID, userID).First(&draft).Error
	return &draft, err
}

func (r *LearningGoalRepository) UpdateDraft(draft *model.DraftLearningGoal) error {
	return r.DB.Save(draft).Error
}

func (r *LearningGoalRepository) ListDrafts(userID uint) ([]model.DraftLearningGoal, error) {
	var drafts []model.DraftLearningGoal
	err := r.DB.Where("user_id = ? AND is_finalized = ?", userID, false).
		Order("id DESC").Find(&drafts).Error
	return drafts, err
}

func (r *LearningGoalRepository) DeleteDraft(userID, draftID uint) error {
	return r.DB.Where("id = ? AND user_id = ?", draftID, userID).
		Delete(&model.DraftLearningGoal{}).Error
}

// ---------- 正式目标 ----------

// FinalizeDraft 把草稿和已解析的大纲一次性落成目标/主题/子主题记录
func (r *LearningGoalRepository) FinalizeDraft(draft *model.DraftLearningGoal, goal *model.LearningGoal) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(goal).Error; err != nil {
			return err
		}
		draft.IsFinalized = true
		return tx.Save(draft).Error
	})
}

func (r *LearningGoalRepository) FindGoalByID(userID, goalID uint) (*model.LearningGoal, error) {
	var goal model.LearningGoal
	err := r.DB.Where("id = ? AND user_id = ?", goalID, userID).
		Preload("MainTopics", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("MainTopics.SubTopics", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&goal).Error
	return &goal, err
}

func (r *LearningGoalRepository) ListGoals(userID uint) ([]model.LearningGoal, error) {
	var goals []model.LearningGoal
	err := r.DB.Where("user_id = ?", userID).Order("id DESC").Find(&goals).Error
	return goals, err
}

func (r *LearningGoalRepository) DeleteGoal(userID, goalID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var goal model.LearningGoal
		if err := tx.Where("id = ? AND user_id = ?", goalID, userID).First(&goal).Error; err != nil {
			return err
		}
		var mainIDs []uint
		if err := tx.Model(&model.LearningMainTopic{}).
			Where("learning_goal_id = ?", goalID).Pluck("id", &mainIDs).Error; err != nil {
			return err
		}
		if len(mainIDs) > 0 {
			if err := tx.Where("main_topic_id IN ?", mainIDs).
				Delete(&model.LearningSubTopic{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("learning_goal_id = ?", goalID).
			Delete(&model.LearningMainTopic{}).Error; err != nil {
			return err
		}
		return tx.Delete(&goal).Error
	})
}

func (r *LearningGoalRepository) FindMainTopicByID(id uint) (*model.LearningMainTopic, error) {
	var topic model.LearningMainTopic
	err := r.DB.Preload("LearningGoal").
		Preload("SubTopics", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&topic, id).Error
	return &topic, err
}

func (r *LearningGoalRepository) FindSubTopicByID(id uint) (*model.LearningSubTopic, error) {
	var topic model.LearningSubTopic
	err := r.DB.Preload("MainTopic").Preload("MainTopic.LearningGoal").
		First(&topic, id).Error
	return &topic, err
}

func (r *LearningGoalRepository) SubTopicsOfMain(mainTopicID uint) ([]model.LearningSubTopic, error) {
	var topics []model.LearningSubTopic
	err := r.DB.Where("main_topic_id = ?", mainTopicID).Order("id").Find(&topics).Error
	return topics, err
}

func (r *LearningGoalRepository) MainTopicsOfGoal(goalID uint) ([]model.LearningMainTopic, error) {
	var topics []model.LearningMainTopic
	err := r.DB.Where("learning_goal_id = ?", goalID).Order("id").Find(&topics).Error
	return topics, err
}

func (r *LearningGoalRepository) UpdateMainTopicStatus(id uint, status model.TopicStatus) error {
	return r.DB.Model(&model.LearningMainTopic{}).Where("id = ?", id).
		Update("status", status).Error
}

func (r *LearningGoalRepository) UpdateSubTopicStatus(id uint, status model.TopicStatus) error {
	return r.DB.Model(&model.LearningSubTopic{}).Where("id = ?", id).
		Update("status", status).Error
}

// SaveRubric 把生成的评分细则回写到对应层级
func (r *LearningGoalRepository) SaveRubric(level model.ExamTargetLevel, id uint, rubricJSON string) error {
	switch level {
	case model.TargetSubTopic:
		return r.DB.Model(&model.LearningSubTopic{}).Where("id = ?", id).
			Update("rubric_schema", rubricJSON).Error
	case model.TargetMainTopic:
		return r.DB.Model(&model.LearningMainTopic{}).Where("id = ?", id).
			Update("rubric_schema", rubricJSON).Error
	default:
		return r.DB.Model(&model.LearningGoal{}).Where("id = ?", id).
			Update("rubric_schema", rubricJSON).Error
	}
}

// ---------- 分类 ----------

func (r *LearningGoalRepository) ListCategories(userID uint) ([]model.Category, error) {
	var categories []model.Category
	err := r.DB.Where("is_global = ? OR owner_id = ?", true, userID).
		Order("id").Find(&categories).Error
	return categories, err
}

func (r *LearningGoalRepository) CreateCategory(category *model.Category) error {
	return r.DB.Create(category).Error
}
