package service

import (
	"context"
	"encoding/json"
	"testing"

	"study_ai_backend/internal/ai"
	"study_ai_backend/internal/model"
	"study_ai_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mcqReply = `{"question":"哪个关键字声明常量？","choices":{"A":"var","B":"const","C":"let","D":"def"},"answer":"B","explanation":"const 声明编译期常量"}`

	rubricReply = `{"max_total_score":20,"criteria":[
		{"key":"correctness","description":"答案正确性","max_score":10},
		{"key":"reasoning","description":"推理过程","max_score":6},
		{"key":"clarity","description":"表达清晰","max_score":4}]}`

	evaluationReply = `{"total_score":14,"feedback":"基本正确","detail_scores":{"items":[
		{"key":"correctness","score":8,"max_score":10,"evaluation":"结论正确"},
		{"key":"reasoning","score":4,"max_score":6,"evaluation":"有跳步"},
		{"key":"clarity","score":2,"max_score":4,"evaluation":"可读"}]}}`
)

func TestStartExamUnknownType(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, _ := env.seedUserWithGoal(t)

	_, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "nope", TargetID: 1})
	var cfgErr *util.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStartExamBinarySkipsRubric(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, uint(1), session.AttemptNumber)
	assert.Equal(t, uint(5), session.MaxQuestions)
	assert.Empty(t, session.RubricSnapshot)
	assert.True(t, session.HasSingleTarget())
	// binary 开考不调模型
	assert.Equal(t, 0, env.invoker.count(ai.WorkflowQuestionGeneration))
}

func TestStartExamOpensRecordsAtomically(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, model.ExamInProgress, session.Status)

	reloaded, err := env.examRepo.FindSessionByID(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamInProgress, reloaded.Status)

	// 学习记录和时间片随会话一起建好
	record, err := env.studyRepo.FindByExamSession(session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StudyTest, record.SessionType)
	assert.Nil(t, record.EndTime)

	var slices int64
	require.NoError(t, env.db.Model(&model.ExamSessionSlice{}).
		Where("session_id = ?", session.ID).Count(&slices).Error)
	assert.Equal(t, int64(1), slices)
}

func TestStartExamRollsBackOnPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	// 学习记录写不进去时整个开考回滚，不留半截会话
	require.NoError(t, env.db.Migrator().DropTable(&model.StudySession{}))

	_, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.Error(t, err)

	var sessions int64
	require.NoError(t, env.db.Model(&model.ExamSession{}).Count(&sessions).Error)
	assert.Equal(t, int64(0), sessions)
}

func TestStartExamFreezesStoredRubric(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	stored := `{"max_total_score":20,"criteria":[{"key":"a","description":"x","max_score":10},{"key":"b","description":"y","max_score":6},{"key":"c","description":"z","max_score":4}]}`
	require.NoError(t, env.goalRepo.SaveRubric(model.TargetSubTopic, sub.ID, stored))

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_written", TargetID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, stored, session.RubricSnapshot)
	assert.Equal(t, 0, env.invoker.count(ai.WorkflowQuestionGeneration))
}

func TestStartExamRubricFallsBackAlongChain(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, main, sub := env.seedUserWithGoal(t)

	// 子主题的细则总分越界，落到主主题的合法细则
	bad := `{"max_total_score":50,"criteria":[{"key":"a","description":"x","max_score":25},{"key":"b","description":"y","max_score":15},{"key":"c","description":"z","max_score":10}]}`
	good := `{"max_total_score":20,"criteria":[{"key":"a","description":"x","max_score":10},{"key":"b","description":"y","max_score":6},{"key":"c","description":"z","max_score":4}]}`
	require.NoError(t, env.goalRepo.SaveRubric(model.TargetSubTopic, sub.ID, bad))
	require.NoError(t, env.goalRepo.SaveRubric(model.TargetMainTopic, main.ID, good))

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_written", TargetID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, good, session.RubricSnapshot)
	assert.Equal(t, 0, env.invoker.count(ai.WorkflowQuestionGeneration))
}

func TestStartExamGeneratesRubricWhenChainEmpty(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	env.invoker.queue(ai.WorkflowQuestionGeneration, rubricReply)
	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_written", TargetID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, env.invoker.count(ai.WorkflowQuestionGeneration))

	var schema ai.RubricSchema
	require.NoError(t, json.Unmarshal([]byte(session.RubricSnapshot), &schema))
	assert.Equal(t, 20.0, schema.MaxTotalScore)

	// 生成的细则回写到考试目标所在层级
	reloaded, err := env.goalRepo.FindSubTopicByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, session.RubricSnapshot, reloaded.RubricSchema)
}

func TestMCQFlowWithLocalScoring(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowQuestionGeneration, mcqReply)
	question, err := svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), question.QuestionNumber)
	assert.Equal(t, "B", question.CorrectAnswer)
	assert.NotEmpty(t, question.Choices)

	evaluation, err := svc.SubmitAnswer(context.Background(), user.ID, session.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, 1.0, evaluation.Score)
	assert.Equal(t, "const 声明编译期常量", evaluation.Feedback)
	// binary 在本地比对，不过评分模型
	assert.Equal(t, 0, env.invoker.count(ai.WorkflowScoring))
}

func TestGenerateQuestionRetriesMalformedMCQ(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)

	// 第一次不是JSON，重新生成一次拿到合法题目
	env.invoker.queue(ai.WorkflowQuestionGeneration, "抱歉，我说不出JSON", mcqReply)
	question, err := svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", question.CorrectAnswer)
	assert.Equal(t, 2, env.invoker.count(ai.WorkflowQuestionGeneration))
}

func TestMCQWrongAnswerScoresZero(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowQuestionGeneration, mcqReply)
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	evaluation, err := svc.SubmitAnswer(context.Background(), user.ID, session.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, 0.0, evaluation.Score)
}

func TestPerQuestionFlowBlocksNextUntilEvaluated(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	env.invoker.queue(ai.WorkflowQuestionGeneration, rubricReply)
	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_written", TargetID: sub.ID})
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowQuestionGeneration, "第一道记述题")
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	// 没评分之前不能出下一题
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	var stateErr *util.StateError
	require.ErrorAs(t, err, &stateErr)

	env.invoker.queue(ai.WorkflowScoring, evaluationReply)
	evaluation, err := svc.SubmitAnswer(context.Background(), user.ID, session.ID, "我的答案")
	require.NoError(t, err)
	assert.Equal(t, 14.0, evaluation.Score)
	assert.NotEmpty(t, evaluation.DetailScores)
	assert.Equal(t, session.RubricSnapshot, evaluation.RubricSnapshot)

	env.invoker.queue(ai.WorkflowQuestionGeneration, "第二道记述题")
	question, err := svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), question.QuestionNumber)
}

func TestEvaluationOutOfBoundsRejected(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	env.invoker.queue(ai.WorkflowQuestionGeneration, rubricReply)
	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_written", TargetID: sub.ID})
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowQuestionGeneration, "记述题")
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	// 重新生成一次也越界，最终报结构错误
	over := `{"total_score":25,"feedback":"x","detail_scores":{"items":[{"key":"a","score":25,"max_score":20,"evaluation":"y"}]}}`
	env.invoker.queue(ai.WorkflowScoring, over, over)
	_, err = svc.SubmitAnswer(context.Background(), user.ID, session.ID, "答案")
	var schemaErr *ai.SchemaValidationError
	assert.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, 2, env.invoker.count(ai.WorkflowScoring))
}

func TestQuestionLimitEnforced(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, goal, _, _ := env.seedUserWithGoal(t)

	env.invoker.queue(ai.WorkflowQuestionGeneration, rubricWithTotal(t, 100))
	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "goal_comprehensive", TargetID: goal.ID})
	require.NoError(t, err)
	require.Equal(t, uint(1), session.MaxQuestions)

	env.invoker.queue(ai.WorkflowQuestionGeneration, "综合题")
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowScoring, `{"total_score":80,"feedback":"x","detail_scores":{"items":[{"key":"a","score":80,"max_score":100,"evaluation":"y"}]}}`)
	_, err = svc.SubmitAnswer(context.Background(), user.ID, session.ID, "长答案")
	require.NoError(t, err)

	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	var stateErr *util.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestFinalizeExamIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowQuestionGeneration, mcqReply, mcqReply)
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(context.Background(), user.ID, session.ID, "B")
	require.NoError(t, err)

	// 第二题出了但不作答，结算时按0分跳过
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	result, err := svc.FinalizeExam(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.TotalScore)
	assert.Equal(t, 5.0, result.MaxScore)
	assert.InDelta(t, 0.2, result.AccuracyRate, 1e-9)

	questions, err := svc.GetQuestions(user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuestionSkipped, questions[1].Status)

	// 重复结算返回同一份成绩
	again, err := svc.FinalizeExam(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, again.ID)

	// 结算后不能再出题
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	var stateErr *util.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestGenerateReportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)

	// 报告要求先结算
	_, err = svc.GenerateReport(context.Background(), user.ID, session.ID)
	var stateErr *util.StateError
	require.ErrorAs(t, err, &stateErr)

	_, err = svc.FinalizeExam(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowReport, "考试报告")
	result, err := svc.GenerateReport(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "考试报告", result.Report)
	assert.Equal(t, 1, env.invoker.count(ai.WorkflowReport))

	// 已有报告直接返回
	result, err = svc.GenerateReport(context.Background(), user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "考试报告", result.Report)
	assert.Equal(t, 1, env.invoker.count(ai.WorkflowReport))
}

func TestPostChatGatedByExamType(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	// sub_topic_mcq 不允许考后答疑
	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)
	_, err = svc.FinalizeExam(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	_, err = svc.PostChat(context.Background(), user.ID, session.ID, "为什么错了")
	var stateErr *util.StateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestPostChatAfterFinalize(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	env.invoker.queue(ai.WorkflowQuestionGeneration, rubricReply)
	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_written", TargetID: sub.ID})
	require.NoError(t, err)

	// 未结算不能答疑
	_, err = svc.PostChat(context.Background(), user.ID, session.ID, "问题")
	var stateErr *util.StateError
	require.ErrorAs(t, err, &stateErr)

	_, err = svc.FinalizeExam(context.Background(), user.ID, session.ID)
	require.NoError(t, err)

	env.invoker.queue(ai.WorkflowLecture, "答疑回复")
	reply, err := svc.PostChat(context.Background(), user.ID, session.ID, "这道题考什么")
	require.NoError(t, err)
	assert.Equal(t, "答疑回复", reply)
}

func TestAbortExam(t *testing.T) {
	env := newTestEnv(t)
	svc := env.examService()
	user, _, _, sub := env.seedUserWithGoal(t)

	session, err := svc.StartExam(context.Background(), user.ID, StartExamRequest{ExamTypeCode: "sub_topic_mcq", TargetID: sub.ID})
	require.NoError(t, err)

	require.NoError(t, svc.AbortExam(user.ID, session.ID))
	// 中止是幂等的
	require.NoError(t, svc.AbortExam(user.ID, session.ID))

	reloaded, err := svc.GetSession(user.ID, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamAborted, reloaded.Status)

	// 中止后不能结算出成绩之外的操作
	_, err = svc.GenerateQuestion(context.Background(), user.ID, session.ID)
	var stateErr *util.StateError
	assert.ErrorAs(t, err, &stateErr)
}

// rubricWithTotal 给定总分的合法细则
func rubricWithTotal(t *testing.T, total float64) string {
	t.Helper()
	schema := ai.RubricSchema{
		MaxTotalScore: total,
		Criteria: []ai.RubricCriterion{
			{Key: "understanding", Description: "理解", MaxScore: total / 2},
			{Key: "application", Description: "应用", MaxScore: total / 4},
			{Key: "integration", Description: "综合", MaxScore: total / 4},
		},
	}
	b, err := json.Marshal(schema)
	require.NoError(t, err)
	return string(b)
}
