package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripCodeFence(tc.in))
		})
	}
}

func TestParseOutline(t *testing.T) {
	raw := `{"main_topics":[{"title":"变量与类型","sub_topics":[{"title":"声明"},{"title":"零值"}]},{"title":"流程控制","sub_topics":[{"title":"循环"}]}]}`

	outline, err := ParseOutline(raw)
	require.NoError(t, err)
	require.Len(t, outline.MainTopics, 2)
	assert.Equal(t, "变量与类型", outline.MainTopics[0].Title)
	require.Len(t, outline.MainTopics[0].SubTopics, 2)
	assert.Equal(t, "零值", outline.MainTopics[0].SubTopics[1].Title)
}

func TestParseOutlineRejectsExtraKeys(t *testing.T) {
	raw := `{"main_topics":[{"title":"A","sub_topics":[{"title":"B"}],"difficulty":"easy"}]}`

	_, err := ParseOutline(raw)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "main_topics[0]", schemaErr.Path)
}

func TestParseOutlineRejectsMissingKeys(t *testing.T) {
	_, err := ParseOutline(`{"main_topics":[{"title":"A"}]}`)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
}

func TestParseOutlineRejectsEmptyTopics(t *testing.T) {
	_, err := ParseOutline(`{"main_topics":[]}`)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)

	_, err = ParseOutline(`{"main_topics":[{"title":"A","sub_topics":[]}]}`)
	require.ErrorAs(t, err, &schemaErr)
}

func TestParseOutlineMalformedJSON(t *testing.T) {
	_, err := ParseOutline(`not json at all`)
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestParseRubricSchema(t *testing.T) {
	raw := `{"max_total_score":20,"criteria":[
		{"key":"correctness","description":"答案正确性","max_score":10},
		{"key":"reasoning","description":"推理过程","max_score":6},
		{"key":"clarity","description":"表达清晰","max_score":4}]}`

	schema, err := ParseRubricSchema(raw, 20)
	require.NoError(t, err)
	assert.Equal(t, 20.0, schema.MaxTotalScore)
	require.Len(t, schema.Criteria, 3)
	assert.Equal(t, "reasoning", schema.Criteria[1].Key)
}

func TestParseRubricSchemaSumMismatch(t *testing.T) {
	raw := `{"max_total_score":20,"criteria":[
		{"key":"a","description":"x","max_score":10},
		{"key":"b","description":"y","max_score":6},
		{"key":"c","description":"z","max_score":5}]}`

	_, err := ParseRubricSchema(raw, 20)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "criteria", schemaErr.Path)
}

func TestParseRubricSchemaCriteriaCount(t *testing.T) {
	tooFew := `{"max_total_score":10,"criteria":[
		{"key":"a","description":"x","max_score":5},
		{"key":"b","description":"y","max_score":5}]}`
	_, err := ParseRubricSchema(tooFew, 20)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
}

func TestParseRubricSchemaCeiling(t *testing.T) {
	raw := `{"max_total_score":50,"criteria":[
		{"key":"a","description":"x","max_score":20},
		{"key":"b","description":"y","max_score":20},
		{"key":"c","description":"z","max_score":10}]}`

	_, err := ParseRubricSchema(raw, 20)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "max_total_score", schemaErr.Path)

	// 目标级上限100，同一份细则应当通过
	_, err = ParseRubricSchema(raw, 100)
	assert.NoError(t, err)
}

func TestParseRubricSchemaDuplicateKey(t *testing.T) {
	raw := `{"max_total_score":15,"criteria":[
		{"key":"a","description":"x","max_score":5},
		{"key":"a","description":"y","max_score":5},
		{"key":"c","description":"z","max_score":5}]}`

	_, err := ParseRubricSchema(raw, 20)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
}

func mcqJSON(answer string) string {
	m := map[string]interface{}{
		"question":    "以下哪个关键字用于声明常量？",
		"choices":     map[string]string{"A": "var", "B": "const", "C": "let", "D": "def"},
		"answer":      answer,
		"explanation": "const 声明编译期常量",
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func TestParseMCQ(t *testing.T) {
	mcq, err := ParseMCQ(mcqJSON("B"))
	require.NoError(t, err)
	assert.Equal(t, "B", mcq.Answer)
	assert.Len(t, mcq.Choices, 4)
	assert.Equal(t, "const", mcq.Choices["B"])
}

func TestParseMCQAnswerNotInChoices(t *testing.T) {
	_, err := ParseMCQ(mcqJSON("E"))
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "answer", schemaErr.Path)
}

func TestParseMCQMissingChoice(t *testing.T) {
	raw := `{"question":"q","choices":{"A":"1","B":"2","C":"3"},"answer":"A","explanation":"e"}`
	_, err := ParseMCQ(raw)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
}

func evaluationJSON(total float64, itemScore float64) string {
	m := map[string]interface{}{
		"total_score": total,
		"feedback":    "基本正确，推理略有跳步",
		"detail_scores": map[string]interface{}{
			"items": []map[string]interface{}{
				{"key": "correctness", "score": itemScore, "max_score": 10.0, "evaluation": "结论正确"},
				{"key": "reasoning", "score": 6.0, "max_score": 10.0, "evaluation": "过程欠完整"},
			},
		},
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func TestParseEvaluation(t *testing.T) {
	eval, err := ParseEvaluation(evaluationJSON(14, 8), 20)
	require.NoError(t, err)
	assert.Equal(t, 14.0, eval.TotalScore)
	require.Len(t, eval.DetailScores.Items, 2)
	assert.Equal(t, 8.0, eval.DetailScores.Items[0].Score)
}

func TestParseEvaluationTotalOutOfRange(t *testing.T) {
	_, err := ParseEvaluation(evaluationJSON(25, 8), 20)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "total_score", schemaErr.Path)
}

func TestParseEvaluationItemOutOfRange(t *testing.T) {
	_, err := ParseEvaluation(evaluationJSON(14, 12), 20)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "detail_scores.items[0].score", schemaErr.Path)
}

func TestParseLectureTopicsSortsByOrder(t *testing.T) {
	raw := `{"topics":[{"order":3,"title":"收尾"},{"order":1,"title":"导入"},{"order":2,"title":"展开"}]}`

	topics, err := ParseLectureTopics(raw)
	require.NoError(t, err)
	require.Len(t, topics, 3)
	assert.Equal(t, "导入", topics[0].Title)
	assert.Equal(t, "收尾", topics[2].Title)
}

func TestParseLectureTopicsEmpty(t *testing.T) {
	_, err := ParseLectureTopics(`{"topics":[]}`)
	var schemaErr *SchemaValidationError
	require.ErrorAs(t, err, &schemaErr)
}
