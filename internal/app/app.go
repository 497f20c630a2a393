package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"study_ai_backend/internal/ai"
	"study_ai_backend/internal/config"
	"study_ai_backend/internal/controller"
	"study_ai_backend/internal/repository"
	"study_ai_backend/internal/service"
	"study_ai_backend/pkg/database"
	"study_ai_backend/pkg/logger"
	"study_ai_backend/pkg/monitoring"
	"study_ai_backend/pkg/security"
	"study_ai_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	AIClient        *ai.Client
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	language    *repository.LanguageRepository
	goal        *repository.LearningGoalRepository
	lecture     *repository.LectureRepository
	exam        *repository.ExamRepository
	studyRecord *repository.StudyRecordRepository
}

type services struct {
	auth         *service.AuthService
	storage      *service.StorageService
	learningGoal *service.LearningGoalService
	lecture      *service.LectureService
	exam         *service.ExamService
}

type controllers struct {
	auth         *controller.AuthController
	learningGoal *controller.LearningGoalController
	lecture      *controller.LectureController
	exam         *controller.ExamController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig 配置热更新入口，由配置监听器回调
func (a *App) ApplyConfig(cfg *config.Config) {
	a.AIClient.UpdateConfig(cfg.AI)
	for _, callback := range a.configCallbacks {
		callback(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		language:    repository.NewLanguageRepository(db),
		goal:        repository.NewLearningGoalRepository(db),
		lecture:     repository.NewLectureRepository(db),
		exam:        repository.NewExamRepository(db),
		studyRecord: repository.NewStudyRecordRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, repos.language, cfg)
	s.learningGoal = service.NewLearningGoalService(repos.goal, repos.user, repos.language, a.AIClient, cfg, rdb)
	s.lecture = service.NewLectureService(repos.lecture, repos.goal, repos.user, repos.language, repos.studyRecord, s.storage, a.AIClient, cfg, rdb)
	s.exam = service.NewExamService(repos.exam, repos.goal, repos.user, repos.language, repos.studyRecord, s.storage, a.AIClient, cfg, rdb)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		learningGoal: controller.NewLearningGoalController(s.learningGoal),
		lecture:      controller.NewLectureController(s.lecture),
		exam:         controller.NewExamController(s.exam),
		health:       controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 600
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		AIClient: ai.NewClient(cfg.AI),
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router
	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("study-ai-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
