package service

import (
	"context"
	"encoding/json"

	"study_ai_backend/internal/ai"
	"study_ai_backend/internal/config"
	"study_ai_backend/internal/model"
	"study_ai_backend/internal/repository"
	"study_ai_backend/internal/util"

	"github.com/go-redis/redis/v8"
)

// LearningGoalService 学习目标的草稿、大纲生成与定稿
type LearningGoalService struct {
	GoalRepo     *repository.LearningGoalRepository
	UserRepo     *repository.UserRepository
	LanguageRepo *repository.LanguageRepository
	AI           ai.Invoker
	Cfg          *config.Config
	Redis        *redis.Client
}

func NewLearningGoalService(
	goalRepo *repository.LearningGoalRepository,
	userRepo *repository.UserRepository,
	languageRepo *repository.LanguageRepository,
	invoker ai.Invoker,
	cfg *config.Config,
	rdb *redis.Client,
) *LearningGoalService {
	return &LearningGoalService{
		GoalRepo:     goalRepo,
		UserRepo:     userRepo,
		LanguageRepo: languageRepo,
		AI:           invoker,
		Cfg:          cfg,
		Redis:        rdb,
	}
}

// CreateDraftRequest 创建学习目标草稿的请求结构
type CreateDraftRequest struct {
	Title        string `json:"title" binding:"required,max=200"`
	CurrentLevel string `json:"currentLevel" binding:"max=1000"`
	TargetLevel  string `json:"targetLevel" binding:"max=1000"`
	Description  string `json:"description" binding:"max=2000"`
	CategoryID   *uint  `json:"categoryId"`
}

// CreateDraft 生成大纲并保存为草稿。大纲保存的始终是通过校验后的规范化JSON
func (s *LearningGoalService) CreateDraft(ctx context.Context, userID uint, req CreateDraftRequest) (*model.DraftLearningGoal, error) {
	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	lang, err := preferredLanguage(user, s.LanguageRepo)
	if err != nil {
		return nil, err
	}

	outline, _, err := s.generateOutline(ctx, req.Title, req.CurrentLevel, req.TargetLevel, req.Description, lang)
	if err != nil {
		return nil, err
	}
	rawOutline, err := json.Marshal(outline)
	if err != nil {
		return nil, err
	}

	draft := &model.DraftLearningGoal{
		UserID:       userID,
		CategoryID:   req.CategoryID,
		Title:        req.Title,
		CurrentLevel: req.CurrentLevel,
		TargetLevel:  req.TargetLevel,
		Description:  req.Description,
		RawOutline:   string(rawOutline),
	}
	if err := s.GoalRepo.CreateDraft(draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// RegenerateDraft 重新生成草稿大纲，覆盖原有大纲
func (s *LearningGoalService) RegenerateDraft(ctx context.Context, userID, draftID uint) (*model.DraftLearningGoal, error) {
	draft, err := s.GoalRepo.FindDraftByID(userID, draftID)
	if err != nil {
		return nil, err
	}

	release, err := acquireGenerationGuard(ctx, s.Redis, "draft", draft.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	lang, err := preferredLanguage(user, s.LanguageRepo)
	if err != nil {
		return nil, err
	}

	outline, _, err := s.generateOutline(ctx, draft.Title, draft.CurrentLevel, draft.TargetLevel, draft.Description, lang)
	if err != nil {
		return nil, err
	}
	rawOutline, err := json.Marshal(outline)
	if err != nil {
		return nil, err
	}

	draft.RawOutline = string(rawOutline)
	if err := s.GoalRepo.UpdateDraft(draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// UpdateDraftOutline 保存用户手工编辑的大纲，入库前同样过结构校验
func (s *LearningGoalService) UpdateDraftOutline(userID, draftID uint, outlineJSON string) (*model.DraftLearningGoal, error) {
	draft, err := s.GoalRepo.FindDraftByID(userID, draftID)
	if err != nil {
		return nil, err
	}

	outline, err := ai.ParseOutline(outlineJSON)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(outline)
	if err != nil {
		return nil, err
	}

	draft.RawOutline = string(normalized)
	if err := s.GoalRepo.UpdateDraft(draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// FinalizeDraft 把草稿和大纲转成正式的目标/主题/子主题记录
func (s *LearningGoalService) FinalizeDraft(userID, draftID uint) (*model.LearningGoal, error) {
	draft, err := s.GoalRepo.FindDraftByID(userID, draftID)
	if err != nil {
		return nil, err
	}
	if draft.IsFinalized {
		return nil, util.NewStateError("finalize_draft", "草稿已定稿")
	}

	outline, err := ai.ParseOutline(draft.RawOutline)
	if err != nil {
		return nil, err
	}

	goal := &model.LearningGoal{
		UserID:       userID,
		CategoryID:   draft.CategoryID,
		DraftID:      &draft.ID,
		Title:        draft.Title,
		CurrentLevel: draft.CurrentLevel,
		TargetLevel:  draft.TargetLevel,
		Description:  draft.Description,
	}
	for _, main := range outline.MainTopics {
		mainTopic := model.LearningMainTopic{
			UserID: userID,
			Title:  main.Title,
		}
		for _, sub := range main.SubTopics {
			mainTopic.SubTopics = append(mainTopic.SubTopics, model.LearningSubTopic{
				Title: sub.Title,
			})
		}
		goal.MainTopics = append(goal.MainTopics, mainTopic)
	}

	if err := s.GoalRepo.FinalizeDraft(draft, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *LearningGoalService) ListDrafts(userID uint) ([]model.DraftLearningGoal, error) {
	return s.GoalRepo.ListDrafts(userID)
}

func (s *LearningGoalService) DeleteDraft(userID, draftID uint) error {
	return s.GoalRepo.DeleteDraft(userID, draftID)
}

func (s *LearningGoalService) ListGoals(userID uint) ([]model.LearningGoal, error) {
	return s.GoalRepo.ListGoals(userID)
}

func (s *LearningGoalService) GetGoal(userID, goalID uint) (*model.LearningGoal, error) {
	return s.GoalRepo.FindGoalByID(userID, goalID)
}

func (s *LearningGoalService) DeleteGoal(userID, goalID uint) error {
	return s.GoalRepo.DeleteGoal(userID, goalID)
}

func (s *LearningGoalService) ListCategories(userID uint) ([]model.Category, error) {
	return s.GoalRepo.ListCategories(userID)
}

func (s *LearningGoalService) CreateCategory(userID uint, name string) (*model.Category, error) {
	category := &model.Category{OwnerID: &userID, Name: name}
	if err := s.GoalRepo.CreateCategory(category); err != nil {
		return nil, err
	}
	return category, nil
}

// generateOutline 调模型生成大纲并做结构校验
func (s *LearningGoalService) generateOutline(ctx context.Context, title, currentLevel, targetLevel, description string, lang *model.Language) (*ai.Outline, int, error) {
	messages := ai.OutlinePrompt(title, currentLevel, targetLevel, description, lang)
	opts := ai.OptionsFor(s.Cfg.AI, ai.WorkflowQuestionGeneration)

	var outline *ai.Outline
	completion, err := invokeParsed(ctx, s.AI, messages, opts, func(c ai.Completion) error {
		parsed, perr := ai.ParseOutline(c.Content)
		if perr != nil {
			return perr
		}
		outline = parsed
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return outline, completion.TotalTokens, nil
}
