package controller

import (
	"study_ai_backend/internal/service"
	"study_ai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

// ListTypes godoc
// @Summary 考试类型列表
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.ExamType}
// @Router /api/exams/types [get]
func (c *ExamController) ListTypes(ctx *gin.Context) {
	types, err := c.ExamService.ListTypes()
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, types)
}

// StartExam godoc
// @Summary 开始考试
// @Description 创建考试会话并冻结评分细则快照
// @Tags 考试
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body service.StartExamRequest true "考试类型与目标"
// @Success 201 {object} util.Response{data=model.ExamSession}
// @Failure 409 {object} util.Response "并发开考冲突"
// @Failure 500 {object} util.Response "考试类型配置错误"
// @Router /api/exams [post]
func (c *ExamController) StartExam(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.StartExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.ExamService.StartExam(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// ListSessions godoc
// @Summary 考试会话列表
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.ExamSession}
// @Router /api/exams [get]
func (c *ExamController) ListSessions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	sessions, err := c.ExamService.ListSessions(claims.UserID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, sessions)
}

// GetSession godoc
// @Summary 考试会话详情
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.ExamSession}
// @Failure 404 {object} util.Response
// @Router /api/exams/{id} [get]
func (c *ExamController) GetSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	session, err := c.ExamService.GetSession(claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// GenerateQuestion godoc
// @Summary 生成下一题
// @Description 按会话内题号连续出题，达到上限或状态不符时报冲突
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 201 {object} util.Response{data=model.ExamQuestion}
// @Failure 409 {object} util.Response "状态不符或并发冲突"
// @Failure 502 {object} util.Response "生成内容校验失败"
// @Router /api/exams/{id}/questions [post]
func (c *ExamController) GenerateQuestion(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	question, err := c.ExamService.GenerateQuestion(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Created(ctx, question)
}

// GetQuestions godoc
// @Summary 会话题目列表
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=[]model.ExamQuestion}
// @Router /api/exams/{id}/questions [get]
func (c *ExamController) GetQuestions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	questions, err := c.ExamService.GetQuestions(claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// SubmitAnswerRequest 作答请求
type SubmitAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// SubmitAnswer godoc
// @Summary 提交当前题答案
// @Description 提交后立即评分。选择题本地比对，记述题过模型评分
// @Tags 考试
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Param   body body SubmitAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=model.ExamEvaluation}
// @Failure 409 {object} util.Response "重复提交或状态不符"
// @Router /api/exams/{id}/answers [post]
func (c *ExamController) SubmitAnswer(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	var req SubmitAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	evaluation, err := c.ExamService.SubmitAnswer(ctx.Request.Context(), claims.UserID, sessionID, req.Answer)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, evaluation)
}

// Finalize godoc
// @Summary 结算考试
// @Description 冻结成绩快照。重复结算幂等返回既有成绩
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.ExamResult}
// @Failure 409 {object} util.Response "状态不符"
// @Router /api/exams/{id}/finalize [post]
func (c *ExamController) Finalize(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	result, err := c.ExamService.FinalizeExam(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetResult godoc
// @Summary 考试成绩
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.ExamResult}
// @Failure 409 {object} util.Response "尚未结算"
// @Router /api/exams/{id}/result [get]
func (c *ExamController) GetResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	result, err := c.ExamService.GetResult(claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Report godoc
// @Summary 生成考试报告
// @Description 已有报告直接返回，不重复调用模型
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.ExamResult}
// @Failure 409 {object} util.Response "尚未结算"
// @Router /api/exams/{id}/report [post]
func (c *ExamController) Report(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	result, err := c.ExamService.GenerateReport(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ExportReport godoc
// @Summary 导出考试报告
// @Description 报告导出到对象存储，返回访问地址
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "报告尚未生成"
// @Router /api/exams/{id}/report/export [post]
func (c *ExamController) ExportReport(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	url, err := c.ExamService.ExportReport(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}

// PostChat godoc
// @Summary 考后答疑
// @Description 仅允许考后答疑的考试类型可用，对话不落库
// @Tags 考试
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Param   body body ChatRequest true "提问内容"
// @Success 200 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "类型不支持或尚未结算"
// @Router /api/exams/{id}/chat [post]
func (c *ExamController) PostChat(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	var req ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	reply, err := c.ExamService.PostChat(ctx.Request.Context(), claims.UserID, sessionID, req.Message)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"reply": reply})
}

// Abort godoc
// @Summary 中止考试
// @Tags 考试
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response
// @Failure 409 {object} util.Response "已结算无法中止"
// @Router /api/exams/{id}/abort [post]
func (c *ExamController) Abort(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	if err := c.ExamService.AbortExam(claims.UserID, sessionID); err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
