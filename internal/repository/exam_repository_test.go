package repository

import (
	"sync"
	"testing"
	"time"

	"study_ai_backend/internal/model"
	"study_ai_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func examTypeByCode(t *testing.T, repo *ExamRepository, code string) *model.ExamType {
	t.Helper()
	examType, err := repo.FindTypeByCode(code)
	require.NoError(t, err)
	return examType
}

func TestSeededExamTypes(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)

	types, err := repo.ListTypes()
	require.NoError(t, err)
	require.Len(t, types, 4)

	mcq := examTypeByCode(t, repo, "sub_topic_mcq")
	assert.Equal(t, model.ScoringBinary, mcq.ScoringMethod)
	assert.Equal(t, 5.0, mcq.MaxTotalScore())
	assert.False(t, mcq.AllowPostChat)

	comprehensive := examTypeByCode(t, repo, "goal_comprehensive")
	assert.Equal(t, model.TargetGoal, comprehensive.TargetLevel)
	assert.Equal(t, 100.0, comprehensive.MaxTotalScore())
}

func TestAttemptNumberScopedPerTarget(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")
	written := examTypeByCode(t, repo, "sub_topic_written")

	newSession := func(examTypeID uint, subTopicID uint) *model.ExamSession {
		return &model.ExamSession{
			UserID:     user.ID,
			ExamTypeID: examTypeID,
			SubTopicID: &subTopicID,
			Status:     model.ExamInProgress,
		}
	}

	first := newSession(mcq.ID, sub.ID)
	require.NoError(t, repo.CreateSession(first))
	assert.Equal(t, uint(1), first.AttemptNumber)

	second := newSession(mcq.ID, sub.ID)
	require.NoError(t, repo.CreateSession(second))
	assert.Equal(t, uint(2), second.AttemptNumber)

	// 不同考试类型是另一个计数范围
	other := newSession(written.ID, sub.ID)
	require.NoError(t, repo.CreateSession(other))
	assert.Equal(t, uint(1), other.AttemptNumber)
}

func TestCreateSessionRequiresSingleTarget(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, goal, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")

	// 没有目标外键
	err := repo.CreateSession(&model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, Status: model.ExamInProgress,
	})
	var cfgErr *util.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	// 两个目标外键同时存在
	err = repo.CreateSession(&model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, Status: model.ExamInProgress,
		SubTopicID: &sub.ID, LearningGoalID: &goal.ID,
	})
	require.ErrorAs(t, err, &cfgErr)

	// 合法会话不受影响
	require.NoError(t, repo.CreateSession(&model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, Status: model.ExamInProgress, SubTopicID: &sub.ID,
	}))
}

func TestCreateQuestionConcurrentNumbering(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")

	session := &model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, SubTopicID: &sub.ID,
		Status: model.ExamInProgress, MaxQuestions: mcq.DefaultQuestions,
	}
	require.NoError(t, repo.CreateSession(session))

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				q := &model.ExamQuestion{Status: model.QuestionGenerated, Question: "q", MaxScore: 1}
				err := repo.CreateQuestion(session.ID, q)
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
	require.NoError(t, db.Model(&model.ExamQuestion{}).
		Where("session_id = ?", session.ID).
		Order("question_number").Pluck("question_number", &numbers).Error)
	require.Len(t, numbers, workers)
	for i, n := range numbers {
		assert.Equal(t, uint(i+1), n)
	}
}

func TestCreateQuestionNumbersAreContiguous(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")

	session := &model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, SubTopicID: &sub.ID,
		Status: model.ExamInProgress, MaxQuestions: mcq.DefaultQuestions,
	}
	require.NoError(t, repo.CreateSession(session))

	for i := 1; i <= 3; i++ {
		q := &model.ExamQuestion{Status: model.QuestionGenerated, Question: "q", MaxScore: 1}
		require.NoError(t, repo.CreateQuestion(session.ID, q))
		assert.Equal(t, uint(i), q.QuestionNumber)
	}

	reloaded, err := repo.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), reloaded.CurrentQuestionNumber)

	latest, err := repo.LatestQuestion(session.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(3), latest.QuestionNumber)
}

func TestSaveAnswerTwiceIsConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")

	session := &model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, SubTopicID: &sub.ID, Status: model.ExamInProgress,
	}
	require.NoError(t, repo.CreateSession(session))

	q := &model.ExamQuestion{Status: model.QuestionGenerated, Question: "q", MaxScore: 1}
	require.NoError(t, repo.CreateQuestion(session.ID, q))

	require.NoError(t, repo.SaveAnswer(&model.ExamAnswer{QuestionID: q.ID, Answer: "A"}))
	err := repo.SaveAnswer(&model.ExamAnswer{QuestionID: q.ID, Answer: "B"})
	assert.ErrorIs(t, err, util.ErrConcurrencyConflict)

	reloaded, err := repo.FindQuestionByID(q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuestionAnswered, reloaded.Status)
	require.NotNil(t, reloaded.Answer)
	assert.Equal(t, "A", reloaded.Answer.Answer)
}

func TestSaveEvaluationUpdatesStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	written := examTypeByCode(t, repo, "sub_topic_written")

	session := &model.ExamSession{
		UserID: user.ID, ExamTypeID: written.ID, SubTopicID: &sub.ID, Status: model.ExamInProgress,
	}
	require.NoError(t, repo.CreateSession(session))

	q := &model.ExamQuestion{Status: model.QuestionGenerated, Question: "q", MaxScore: 20}
	require.NoError(t, repo.CreateQuestion(session.ID, q))
	require.NoError(t, repo.SaveAnswer(&model.ExamAnswer{QuestionID: q.ID, Answer: "essay"}))
	require.NoError(t, repo.SaveEvaluation(&model.ExamEvaluation{QuestionID: q.ID, Score: 14, Feedback: "ok"}))

	reloaded, err := repo.FindQuestionByID(q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuestionEvaluated, reloaded.Status)
	require.NotNil(t, reloaded.Evaluation)
	assert.Equal(t, 14.0, reloaded.Evaluation.Score)
}

func TestCreateResultTwiceIsConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")

	session := &model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, SubTopicID: &sub.ID, Status: model.ExamInProgress,
	}
	require.NoError(t, repo.CreateSession(session))

	require.NoError(t, repo.CreateResult(&model.ExamResult{SessionID: session.ID, TotalScore: 4, MaxScore: 5, AccuracyRate: 0.8}))
	err := repo.CreateResult(&model.ExamResult{SessionID: session.ID, TotalScore: 5, MaxScore: 5, AccuracyRate: 1})
	assert.ErrorIs(t, err, util.ErrConcurrencyConflict)

	result, err := repo.FindResult(session.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, result.TotalScore)
}

func TestSumSliceSeconds(t *testing.T) {
	db := newTestDB(t)
	repo := NewExamRepository(db)
	user, _, _, sub := seedGoalTree(t, db)
	mcq := examTypeByCode(t, repo, "sub_topic_mcq")

	session := &model.ExamSession{
		UserID: user.ID, ExamTypeID: mcq.ID, SubTopicID: &sub.ID, Status: model.ExamInProgress,
	}
	require.NoError(t, repo.CreateSession(session))

	slice, err := repo.OpenSlice(session.ID)
	require.NoError(t, err)
	past := time.Now().Add(-60 * time.Second)
	require.NoError(t, db.Model(&model.ExamSessionSlice{}).
		Where("id = ?", slice.ID).Update("started_at", past).Error)
	require.NoError(t, repo.CloseSlice(session.ID))

	// 未关闭的时间片不计入
	_, err = repo.OpenSlice(session.ID)
	require.NoError(t, err)

	total, err := repo.SumSliceSeconds(session.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 59)
	assert.Less(t, total, 120)
}
