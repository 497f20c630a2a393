package service

import (
	"context"
	"os"
	"sync"
	"testing"

	"study_ai_backend/internal/ai"
	"study_ai_backend/internal/config"
	"study_ai_backend/internal/model"
	"study_ai_backend/internal/repository"
	"study_ai_backend/pkg/database"
	"study_ai_backend/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// fakeInvoker 按工作流排队返回预置响应，并统计调用次数
type fakeInvoker struct {
	mu      sync.Mutex
	calls   map[string]int
	replies map[string][]string
	fail    map[string]error
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		calls:   map[string]int{},
		replies: map[string][]string{},
		fail:    map[string]error{},
	}
}

func (f *fakeInvoker) queue(workflow string, contents ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[workflow] = append(f.replies[workflow], contents...)
}

func (f *fakeInvoker) count(workflow string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[workflow]
}

func (f *fakeInvoker) Invoke(_ context.Context, _ []ai.Message, opts ai.CallOptions) (ai.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[opts.Workflow]++
	if err := f.fail[opts.Workflow]; err != nil {
		return ai.Completion{}, err
	}
	if q := f.replies[opts.Workflow]; len(q) > 0 {
		f.replies[opts.Workflow] = q[1:]
		return ai.Completion{Content: q[0], TotalTokens: 10}, nil
	}
	return ai.Completion{Content: "stub " + opts.Workflow, TotalTokens: 10}, nil
}

type testEnv struct {
	db          *gorm.DB
	invoker     *fakeInvoker
	cfg         *config.Config
	goalRepo    *repository.LearningGoalRepository
	userRepo    *repository.UserRepository
	langRepo    *repository.LanguageRepository
	lectureRepo *repository.LectureRepository
	examRepo    *repository.ExamRepository
	studyRepo   *repository.StudyRecordRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	return &testEnv{
		db:          db,
		invoker:     newFakeInvoker(),
		cfg:         &config.Config{},
		goalRepo:    repository.NewLearningGoalRepository(db),
		userRepo:    repository.NewUserRepository(db),
		langRepo:    repository.NewLanguageRepository(db),
		lectureRepo: repository.NewLectureRepository(db),
		examRepo:    repository.NewExamRepository(db),
		studyRepo:   repository.NewStudyRecordRepository(db),
	}
}

func (e *testEnv) lectureService() *LectureService {
	return NewLectureService(e.lectureRepo, e.goalRepo, e.userRepo, e.langRepo, e.studyRepo, nil, e.invoker, e.cfg, nil)
}

func (e *testEnv) examService() *ExamService {
	return NewExamService(e.examRepo, e.goalRepo, e.userRepo, e.langRepo, e.studyRepo, nil, e.invoker, e.cfg, nil)
}

func (e *testEnv) goalService() *LearningGoalService {
	return NewLearningGoalService(e.goalRepo, e.userRepo, e.langRepo, e.invoker, e.cfg, nil)
}

// seedUserWithGoal 建一个带 目标/主主题/子主题 的用户
func (e *testEnv) seedUserWithGoal(t *testing.T) (*model.User, *model.LearningGoal, *model.LearningMainTopic, *model.LearningSubTopic) {
	t.Helper()

	user := &model.User{Name: "tester", Email: "tester@example.com", Password: "x"}
	require.NoError(t, e.db.Create(user).Error)

	goal := &model.LearningGoal{UserID: user.ID, Title: "Go入门"}
	require.NoError(t, e.db.Create(goal).Error)

	main := &model.LearningMainTopic{UserID: user.ID, LearningGoalID: goal.ID, Title: "并发"}
	require.NoError(t, e.db.Create(main).Error)

	sub := &model.LearningSubTopic{MainTopicID: main.ID, Title: "goroutine"}
	require.NoError(t, e.db.Create(sub).Error)

	return user, goal, main, sub
}
