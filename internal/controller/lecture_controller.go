package controller

import (
	"study_ai_backend/internal/service"
	"study_ai_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LectureController struct {
	LectureService *service.LectureService
}

func NewLectureController(lectureService *service.LectureService) *LectureController {
	return &LectureController{LectureService: lectureService}
}

// StartLectureRequest 开讲请求
type StartLectureRequest struct {
	SubTopicID uint `json:"subTopicId" binding:"required"`
}

// StartLecture godoc
// @Summary 开始讲义会话
// @Description 为子主题开一次新讲义，生成开场讲授内容
// @Tags 讲义
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body StartLectureRequest true "子主题"
// @Success 201 {object} util.Response{data=service.LectureTurn}
// @Failure 409 {object} util.Response "并发开讲冲突"
// @Failure 503 {object} util.Response "AI服务不可用"
// @Router /api/lectures [post]
func (c *LectureController) StartLecture(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartLectureRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	turn, err := c.LectureService.StartLecture(ctx.Request.Context(), claims.UserID, req.SubTopicID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Created(ctx, turn)
}

// ContinueLecture godoc
// @Summary 续讲
// @Description 恢复该子主题下唯一一条可续会话
// @Tags 讲义
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body StartLectureRequest true "子主题"
// @Success 200 {object} util.Response{data=service.LectureTurn}
// @Failure 409 {object} util.Response "没有可续会话"
// @Router /api/lectures/continue [post]
func (c *LectureController) ContinueLecture(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req StartLectureRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	turn, err := c.LectureService.ContinueLecture(ctx.Request.Context(), claims.UserID, req.SubTopicID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, turn)
}

// GetSession godoc
// @Summary 讲义会话详情
// @Tags 讲义
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.LectureTurn}
// @Failure 404 {object} util.Response
// @Router /api/lectures/{id} [get]
func (c *LectureController) GetSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	turn, err := c.LectureService.GetSession(claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, turn)
}

// Advance godoc
// @Summary 推进讲义
// @Description 完成当前大纲条目并讲授下一条，讲完自动收尾
// @Tags 讲义
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.LectureTurn}
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/lectures/{id}/advance [post]
func (c *LectureController) Advance(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	turn, err := c.LectureService.AdvanceLecture(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, turn)
}

// ChatRequest 讲义内提问
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// Chat godoc
// @Summary 讲义内提问
// @Tags 讲义
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Param   body body ChatRequest true "提问内容"
// @Success 200 {object} util.Response{data=service.LectureTurn}
// @Failure 409 {object} util.Response "会话已结束"
// @Router /api/lectures/{id}/chat [post]
func (c *LectureController) Chat(ctx *gin.Context) {
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

	turn, err := c.LectureService.HandleChat(ctx.Request.Context(), claims.UserID, sessionID, req.Message)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, turn)
}

// End godoc
// @Summary 结束讲义会话
// @Description 关闭时间片。大纲未讲完时保留续讲资格
// @Tags 讲义
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.LectureSession}
// @Router /api/lectures/{id}/end [post]
func (c *LectureController) End(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	session, err := c.LectureService.EndLecture(claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// GetLogs godoc
// @Summary 会话对话记录
// @Tags 讲义
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=[]model.LectureLog}
// @Router /api/lectures/{id}/logs [get]
func (c *LectureController) GetLogs(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	logs, err := c.LectureService.GetLogs(claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, logs)
}

// Report godoc
// @Summary 生成/获取会话报告
// @Description 首次生成全量报告，之后按新增日志增量更新。无新增日志时幂等返回
// @Tags 讲义
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=model.LectureSession}
// @Failure 409 {object} util.Response "会话未结束"
// @Router /api/lectures/{id}/report [post]
func (c *LectureController) Report(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	session, err := c.LectureService.GetOrUpdateReport(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// ExportReport godoc
// @Summary 导出会话报告
// @Description 报告导出到对象存储，返回访问地址
// @Tags 讲义
// @Produce  json
// @Security BearerAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=object}
// @Failure 409 {object} util.Response "报告尚未生成"
// @Router /api/lectures/{id}/report/export [post]
func (c *LectureController) ExportReport(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	sessionID, err := parseIDParam(ctx, "id")
	if err != nil {
		return
	}

	url, err := c.LectureService.ExportReport(ctx.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		util.RenderError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url})
}
