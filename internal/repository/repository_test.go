package repository

import (
	"testing"

	"study_ai_backend/internal/model"
	"study_ai_backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB 每个测试一个独立的内存库，建表和种子数据与生产走同一套迁移
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库在连接间不共享，收紧为单连接
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

// seedGoalTree 建一个 用户 → 目标 → 主主题 → 子主题 的最小结构
func seedGoalTree(t *testing.T, db *gorm.DB) (*model.User, *model.LearningGoal, *model.LearningMainTopic, *model.LearningSubTopic) {
	t.Helper()

	user := &model.User{Name: "tester", Email: "tester@example.com", Password: "x"}
	require.NoError(t, db.Create(user).Error)

	goal := &model.LearningGoal{UserID: user.ID, Title: "Go入门"}
	require.NoError(t, db.Create(goal).Error)

	main := &model.LearningMainTopic{UserID: user.ID, LearningGoalID: goal.ID, Title: "并发"}
	require.NoError(t, db.Create(main).Error)

	sub := &model.LearningSubTopic{MainTopicID: main.ID, Title: "goroutine"}
	require.NoError(t, db.Create(sub).Error)

	return user, goal, main, sub
}
