package controller

import (
	"strconv"

	"study_ai_backend/internal/service"
	"study_ai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LearningGoalController struct {
	GoalService *service.LearningGoalService
}

func NewLearningGoalController(goalService *service.LearningGoalService) *LearningGoalController {
	return &LearningGoalController{GoalService: goalService}
}

// CreateDraft godoc
// @Summary 创建学习目标草稿
// @Description 根据标题和描述生成学习大纲，落为草稿
// @Tags 学习目标
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.CreateDraftRequest true "草稿信息"
// @Success 201 {object} util.Response{data=model.DraftLearningGoal}
// @Failure 400 {object} util.Response
// @Failure 502 {object} util.Response "大纲生成失败"
// @Router /api/goals/drafts [post]
func (c *LearningGoalController) CreateDraft(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateDraftRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	draft, err := c.GoalService.CreateDraft(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Created(ctx, draft)
}

// ListDrafts godoc
// @Summary 草稿列表
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.DraftLearningGoal}
// @Router /api/goals/drafts [get]
func (c *LearningGoalController) ListDrafts(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	drafts, err := c.GoalService.ListDrafts(claims.UserID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, drafts)
}

// RegenerateDraft godoc
// @Summary 重新生成草稿大纲
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "草稿ID"
// @Success 200 {object} util.Response{data=model.DraftLearningGoal}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response "并发生成冲突"
// @Router /api/goals/drafts/{id}/regenerate [post]
func (c *LearningGoalController) RegenerateDraft(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	draftID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	draft, err := c.GoalService.RegenerateDraft(ctx.Request.Context(), claims.UserID, draftID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, draft)
}

// UpdateDraftOutlineRequest 手工编辑大纲
type UpdateDraftOutlineRequest struct {
	Outline string `json:"outline" binding:"required"`
}

// UpdateDraftOutline godoc
// @Summary 编辑草稿大纲
// @Description 保存用户手工调整后的大纲，结构校验不通过则拒绝
// @Tags 学习目标
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "草稿ID"
// @Param   body body UpdateDraftOutlineRequest true "大纲JSON"
// @Success 200 {object} util.Response{data=model.DraftLearningGoal}
// @Failure 400 {object} util.Response
// @Router /api/goals/drafts/{id}/outline [put]
func (c *LearningGoalController) UpdateDraftOutline(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	draftID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	var req UpdateDraftOutlineRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	draft, err := c.GoalService.UpdateDraftOutline(claims.UserID, draftID, req.Outline)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, draft)
}

// FinalizeDraft godoc
// @Summary 草稿定稿
// @Description 把草稿转成正式学习目标及主题/子主题
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "草稿ID"
// @Success 201 {object} util.Response{data=model.LearningGoal}
// @Failure 404 {object} util.Response
// @Router /api/goals/drafts/{id}/finalize [post]
func (c *LearningGoalController) FinalizeDraft(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	draftID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	goal, err := c.GoalService.FinalizeDraft(claims.UserID, draftID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Created(ctx, goal)
}

// DeleteDraft godoc
// @Summary 删除草稿
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "草稿ID"
// @Success 200 {object} util.Response
// @Router /api/goals/drafts/{id} [delete]
func (c *LearningGoalController) DeleteDraft(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	draftID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	if err := c.GoalService.DeleteDraft(claims.UserID, draftID); err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListGoals godoc
// @Summary 学习目标列表
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.LearningGoal}
// @Router /api/goals [get]
func (c *LearningGoalController) ListGoals(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	goals, err := c.GoalService.ListGoals(claims.UserID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, goals)
}

// GetGoal godoc
// @Summary 学习目标详情
// @Description 返回目标及其主题/子主题树
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "目标ID"
// @Success 200 {object} util.Response{data=model.LearningGoal}
// @Failure 404 {object} util.Response
// @Router /api/goals/{id} [get]
func (c *LearningGoalController) GetGoal(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	goalID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	goal, err := c.GoalService.GetGoal(claims.UserID, goalID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, goal)
}

// DeleteGoal godoc
// @Summary 删除学习目标
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "目标ID"
// @Success 200 {object} util.Response
// @Router /api/goals/{id} [delete]
func (c *LearningGoalController) DeleteGoal(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	goalID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	if err := c.GoalService.DeleteGoal(claims.UserID, goalID); err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListCategories godoc
// @Summary 分类列表
// @Tags 学习目标
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Category}
// @Router /api/goals/categories [get]
func (c *LearningGoalController) ListCategories(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	categories, err := c.GoalService.ListCategories(claims.UserID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, categories)
}

// CreateCategoryRequest 新建分类
type CreateCategoryRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateCategory godoc
// @Summary 新建分类
// @Tags 学习目标
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body CreateCategoryRequest true "分类名称"
// @Success 201 {object} util.Response{data=model.Category}
// @Router /api/goals/categories [post]
func (c *LearningGoalController) CreateCategory(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreateCategoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	category, err := c.GoalService.CreateCategory(claims.UserID, req.Name)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Created(ctx, category)
}

// parseIDParam 解析路径ID，非法时直接写400响应
func parseIDParam(ctx *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "无效的"+name+"参数")
		return 0, err
	}
	return uint(id), nil
}
