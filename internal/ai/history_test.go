package ai

import (
	"fmt"
	"testing"

	"study_ai_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeLogs(n int) []model.LectureLog {
	logs := make([]model.LectureLog, 0, n)
	for i := 0; i < n; i++ {
		role := model.LogRoleUser
		if i%2 == 1 {
			role = model.LogRoleAI
		}
		logs = append(logs, model.LectureLog{Role: role, Message: fmt.Sprintf("msg-%d", i)})
	}
	return logs
}

func TestLectureChatHistoryWindow(t *testing.T) {
	h := LectureChatHistory{Summary: "摘要", Logs: makeLogs(12)}
	messages := BuildHistory(h)

	// 摘要 + 最近 ChatWindow 条
	require.Len(t, messages, 1+ChatWindow)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, "msg-7", messages[1].Content)
	assert.Equal(t, "msg-11", messages[len(messages)-1].Content)
}

func TestLectureChatHistoryShorterThanWindow(t *testing.T) {
	h := LectureChatHistory{Logs: makeLogs(3)}
	messages := BuildHistory(h)
	assert.Len(t, messages, 3)
}

func TestSummaryContextOmittedWhenEmpty(t *testing.T) {
	h := LectureChatHistory{Summary: "", Logs: makeLogs(2)}
	for _, m := range BuildHistory(h) {
		assert.NotEqual(t, RoleSystem, m.Role)
	}
}

func TestSystemLogsDropped(t *testing.T) {
	logs := []model.LectureLog{
		{Role: model.LogRoleSystem, Message: "internal"},
		{Role: model.LogRoleUser, Message: "question"},
		{Role: model.LogRoleAI, Message: "answer"},
	}
	messages := BuildHistory(LectureReportHistory{Logs: logs})
	require.Len(t, messages, 2)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, RoleAssistant, messages[1].Role)
}

func TestSummaryUpdateHistoryOnlyLatestLog(t *testing.T) {
	h := SummaryUpdateHistory{Summary: "existing", Logs: makeLogs(8)}
	messages := BuildHistory(h)

	require.Len(t, messages, 2)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Equal(t, "msg-7", messages[1].Content)
}

func TestLectureGenerationHistoryNoConversation(t *testing.T) {
	messages := BuildHistory(LectureGenerationHistory{Summary: "s"})
	require.Len(t, messages, 1)
	assert.Equal(t, RoleSystem, messages[0].Role)
}

func TestLectureReportUpdateHistory(t *testing.T) {
	h := LectureReportUpdateHistory{
		Report:   "既有报告",
		DiffLogs: makeLogs(2),
	}
	messages := BuildHistory(h)
	require.Len(t, messages, 3)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "既有报告")
}

func TestLearningStateSummaryHistoryTriple(t *testing.T) {
	h := LearningStateSummaryHistory{
		Summary:  "s",
		Question: "q",
		Answer:   "a",
		Feedback: "f",
	}
	messages := BuildHistory(h)
	require.Len(t, messages, 4)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, RoleUser, messages[2].Role)
	assert.Equal(t, RoleAssistant, messages[3].Role)
}

func TestLearningStateSummaryHistorySkipsEmpty(t *testing.T) {
	messages := BuildHistory(LearningStateSummaryHistory{Summary: "s"})
	require.Len(t, messages, 1)
}

func TestExamReportHistoryIncludesResult(t *testing.T) {
	result := &model.ExamResult{TotalScore: 15, MaxScore: 20, AccuracyRate: 0.75, DurationSeconds: 300}
	messages := BuildHistory(ExamReportHistory{Summary: "s", Result: result})

	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "15")
	assert.Contains(t, messages[1].Content, "75.00%")
}
