package app

import (
	"study_ai_backend/docs"
	"study_ai_backend/internal/config"
	"study_ai_backend/internal/middleware"
	"study_ai_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/me", c.auth.Me)
		authGroup.PUT("/me/language", c.auth.SetLanguage)

		// 学习目标
		goals := authGroup.Group("/goals")
		{
			goals.GET("", c.learningGoal.ListGoals)
			goals.GET("/categories", c.learningGoal.ListCategories)
			goals.POST("/categories", c.learningGoal.CreateCategory)
			goals.POST("/drafts", c.learningGoal.CreateDraft)
			goals.GET("/drafts", c.learningGoal.ListDrafts)
			goals.POST("/drafts/:id/regenerate", c.learningGoal.RegenerateDraft)
			goals.PUT("/drafts/:id/outline", c.learningGoal.UpdateDraftOutline)
			goals.POST("/drafts/:id/finalize", c.learningGoal.FinalizeDraft)
			goals.DELETE("/drafts/:id", c.learningGoal.DeleteDraft)
			goals.GET("/:id", c.learningGoal.GetGoal)
			goals.DELETE("/:id", c.learningGoal.DeleteGoal)
		}

		// 讲义
		lectures := authGroup.Group("/lectures")
		{
			lectures.POST("", c.lecture.StartLecture)
			lectures.POST("/continue", c.lecture.ContinueLecture)
			lectures.GET("/:id", c.lecture.GetSession)
			lectures.POST("/:id/advance", c.lecture.Advance)
			lectures.POST("/:id/chat", c.lecture.Chat)
			lectures.POST("/:id/end", c.lecture.End)
			lectures.GET("/:id/logs", c.lecture.GetLogs)
			lectures.POST("/:id/report", c.lecture.Report)
			lectures.POST("/:id/report/export", c.lecture.ExportReport)
		}

		// 考试
		exams := authGroup.Group("/exams")
		{
			exams.GET("/types", c.exam.ListTypes)
			exams.POST("", c.exam.StartExam)
			exams.GET("", c.exam.ListSessions)
			exams.GET("/:id", c.exam.GetSession)
			exams.POST("/:id/questions", c.exam.GenerateQuestion)
			exams.GET("/:id/questions", c.exam.GetQuestions)
			exams.POST("/:id/answers", c.exam.SubmitAnswer)
			exams.POST("/:id/finalize", c.exam.Finalize)
			exams.GET("/:id/result", c.exam.GetResult)
			exams.POST("/:id/report", c.exam.Report)
			exams.POST("/:id/report/export", c.exam.ExportReport)
			exams.POST("/:id/chat", c.exam.PostChat)
			exams.POST("/:id/abort", c.exam.Abort)
		}
	}
}
