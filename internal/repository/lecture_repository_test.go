package repository

import (
	"sync"
	"testing"
	"time"

	"study_ai_backend/internal/model"
	"study_ai_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedLectureTopics(t *testing.T, repo *LectureRepository, subTopicID uint, titles ...string) []model.LectureTopic {
	t.Helper()
	topics := make([]model.LectureTopic, 0, len(titles))
	for i, title := range titles {
		topics = append(topics, model.LectureTopic{SubTopicID: subTopicID, DefaultOrder: i + 1, Title: title})
	}
	require.NoError(t, repo.CreateTopics(topics))
	return topics
}

func TestCreateSessionNumbersAreContiguous(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入", "展开")

	first, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.LectureNumber)

	second, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.LectureNumber)

	// 另一个子主题从1重新开始
	other := &model.LearningSubTopic{MainTopicID: sub.MainTopicID, Title: "channel"}
	require.NoError(t, db.Create(other).Error)
	otherTopics := seedLectureTopics(t, repo, other.ID, "导入")

	session, err := repo.CreateSession(user.ID, other.ID, otherTopics)
	require.NoError(t, err)
	assert.Equal(t, uint(1), session.LectureNumber)
}

func TestCreateSessionConcurrentNumbering(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 撞号时重试，冲突错误不允许漏到外面
			for {
				_, err := repo.CreateSession(user.ID, sub.ID, topics)
				if err == util.ErrConcurrencyConflict {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var numbers []uint
	require.NoError(t, db.Model(&model.LectureSession{}).
		Where("user_id = ? AND sub_topic_id = ?", user.ID, sub.ID).
		Order("lecture_number").Pluck("lecture_number", &numbers).Error)
	require.Len(t, numbers, workers)
	for i, n := range numbers {
		assert.Equal(t, uint(i+1), n)
	}
}

func TestAppendExchangeWritesPairAndTokens(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")
	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	require.NoError(t, repo.AppendExchange(session.ID, "什么是goroutine", "轻量级线程", 30))

	logs, err := repo.Logs(session.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.LogRoleUser, logs[0].Role)
	assert.Equal(t, model.LogRoleAI, logs[1].Role)
	assert.Equal(t, 30, logs[1].TokenCount)

	reloaded, err := repo.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), reloaded.UsedTokens)
}

func TestHasAILogIgnoresUserMessages(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")
	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	delivered, err := repo.HasAILog(session.ID)
	require.NoError(t, err)
	assert.False(t, delivered)

	require.NoError(t, repo.AppendLog(&model.LectureLog{
		SessionID: session.ID, Role: model.LogRoleUser, Message: "提问",
	}))
	delivered, err = repo.HasAILog(session.ID)
	require.NoError(t, err)
	assert.False(t, delivered)

	require.NoError(t, repo.AppendLog(&model.LectureLog{
		SessionID: session.ID, Role: model.LogRoleAI, Message: "讲义",
	}))
	delivered, err = repo.HasAILog(session.ID)
	require.NoError(t, err)
	assert.True(t, delivered)
}

func TestCreateSessionClearsPreviousCanContinue(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")

	first, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFinished(first.ID, true))

	_, err = repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	// 旧会话的续讲资格被清掉，范围内不存在可续会话
	_, err = repo.ContinuableSession(user.ID, sub.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreateTopicsDuplicateIsConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	_, _, _, sub := seedGoalTree(t, db)
	seedLectureTopics(t, repo, sub.ID, "导入")

	err := repo.CreateTopics([]model.LectureTopic{{SubTopicID: sub.ID, DefaultOrder: 1, Title: "导入"}})
	assert.ErrorIs(t, err, util.ErrConcurrencyConflict)
}

func TestProgressCursor(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入", "展开", "收尾")

	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	current, err := repo.CurrentProgress(session.ID)
	require.NoError(t, err)
	require.NotNil(t, current.Topic)
	assert.Equal(t, "导入", current.Topic.Title)

	require.NoError(t, repo.CompleteProgress(current.ID))

	current, err = repo.CurrentProgress(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "展开", current.Topic.Title)

	all, err := repo.ListProgress(session.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].IsCompleted)
	assert.False(t, all[1].IsCompleted)
}

func TestLogsAfterIsStrictlyAfter(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")
	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, repo.AppendLog(&model.LectureLog{
			SessionID: session.ID, Role: model.LogRoleAI, Message: msg,
		}))
	}
	logs, err := repo.Logs(session.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	diff, err := repo.LogsAfter(session.ID, logs[1].ID)
	require.NoError(t, err)
	require.Len(t, diff, 1)
	assert.Equal(t, "c", diff[0].Message)

	diff, err = repo.LogsAfter(session.ID, logs[2].ID)
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestSaveReportMovesWatermark(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")
	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	require.NoError(t, repo.AppendLog(&model.LectureLog{
		SessionID: session.ID, Role: model.LogRoleAI, Message: "讲义内容",
	}))
	latest, err := repo.LatestLog(session.ID)
	require.NoError(t, err)

	require.NoError(t, repo.SaveReport(session.ID, "报告正文", &latest.ID))

	reloaded, err := repo.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "报告正文", reloaded.Report)
	require.NotNil(t, reloaded.LastReportLogID)
	assert.Equal(t, latest.ID, *reloaded.LastReportLogID)
}

func TestSliceLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")
	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	opened, err := repo.OpenSlice(session.ID)
	require.NoError(t, err)

	// 已有未关闭时间片时复用，不重复开
	reopened, err := repo.OpenSlice(session.ID)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, reopened.ID)

	// 把起点拨回去，保证时长非零
	past := time.Now().Add(-90 * time.Second)
	require.NoError(t, db.Model(&model.LectureSessionSlice{}).
		Where("id = ?", opened.ID).Update("started_at", past).Error)

	require.NoError(t, repo.CloseSlice(session.ID))
	// 没有打开的时间片时关闭是空操作
	require.NoError(t, repo.CloseSlice(session.ID))

	reloaded, err := repo.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reloaded.DurationSeconds, 89)
}

func TestAddTokensAccumulates(t *testing.T) {
	db := newTestDB(t)
	repo := NewLectureRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	topics := seedLectureTopics(t, repo, sub.ID, "导入")
	session, err := repo.CreateSession(user.ID, sub.ID, topics)
	require.NoError(t, err)

	require.NoError(t, repo.AddTokens(session.ID, 120))
	require.NoError(t, repo.AddTokens(session.ID, 80))

	reloaded, err := repo.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), reloaded.UsedTokens)
}
