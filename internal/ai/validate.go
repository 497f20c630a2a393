package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Outline 学习目标大纲的解析结果
type Outline struct {
	MainTopics []OutlineMainTopic `json:"main_topics"`
}

type OutlineMainTopic struct {
	Title     string            `json:"title"`
	SubTopics []OutlineSubTopic `json:"sub_topics"`
}

type OutlineSubTopic struct {
	Title string `json:"title"`
}

// RubricSchema 评分细则的解析结果。落库时保持原始JSON，不做重组
type RubricSchema struct {
	MaxTotalScore float64           `json:"max_total_score"`
	Criteria      []RubricCriterion `json:"criteria"`
}

type RubricCriterion struct {
	Key         string  `json:"key"`
	Description string  `json:"description"`
	MaxScore    float64 `json:"max_score"`
}

// MCQ 选择题解析结果
type MCQ struct {
	Question    string            `json:"question"`
	Choices     map[string]string `json:"choices"`
	Answer      string            `json:"answer"`
	Explanation string            `json:"explanation"`
}

// Evaluation 评分结果
type Evaluation struct {
	TotalScore   float64      `json:"total_score"`
	Feedback     string       `json:"feedback"`
	DetailScores DetailScores `json:"detail_scores"`
}

type DetailScores struct {
	Items []DetailScoreItem `json:"items"`
}

type DetailScoreItem struct {
	Key        string  `json:"key"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Evaluation string  `json:"evaluation"`
}

// LectureTopicItem 讲义大纲条目
type LectureTopicItem struct {
	Order int    `json:"order"`
	Title string `json:"title"`
}

// StripCodeFence 去掉模型偶尔包裹的markdown代码块
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// 首行可能是语言标记，如 ```json
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeObject 解析JSON对象并校验键集合与期望完全一致。多键少键都算结构错误
func decodeObject(path, raw string, want []string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, &MalformedResponseError{Raw: raw, Err: err}
	}
	got := make([]string, 0, len(obj))
	for k := range obj {
		got = append(got, k)
	}
	sort.Strings(got)
	expected := append([]string(nil), want...)
	sort.Strings(expected)
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		return nil, schemaErr(path,
			"keys {"+strings.Join(expected, ", ")+"}",
			"keys {"+strings.Join(got, ", ")+"}")
	}
	return obj, nil
}

func decodeString(path string, raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", schemaErr(path, "string", typeName(raw))
	}
	return s, nil
}

func decodeNumber(path string, raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, schemaErr(path, "number", typeName(raw))
	}
	return n, nil
}

func decodeArray(path string, raw json.RawMessage) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, schemaErr(path, "array", typeName(raw))
	}
	return arr, nil
}

func typeName(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "":
		return "missing"
	case s[0] == '{':
		return "object"
	case s[0] == '[':
		return "array"
	case s[0] == '"':
		return "string"
	case s == "null":
		return "null"
	case s == "true" || s == "false":
		return "boolean"
	default:
		return "number"
	}
}

// ParseOutline 解析并校验学习目标大纲
func ParseOutline(raw string) (*Outline, error) {
	cleaned := StripCodeFence(raw)
	obj, err := decodeObject("$", cleaned, []string{"main_topics"})
	if err != nil {
		return nil, err
	}
	mains, err := decodeArray("main_topics", obj["main_topics"])
	if err != nil {
		return nil, err
	}
	if len(mains) == 0 {
		return nil, schemaErr("main_topics", "non-empty array", "empty array")
	}

	out := &Outline{}
	for i, rawMain := range mains {
		mainPath := fmt.Sprintf("main_topics[%d]", i)
		mainObj, err := decodeObject(mainPath, string(rawMain), []string{"title", "sub_topics"})
		if err != nil {
			return nil, err
		}
		title, err := decodeString(mainPath+".title", mainObj["title"])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(title) == "" {
			return nil, schemaErr(mainPath+".title", "non-empty string", "empty string")
		}
		subs, err := decodeArray(mainPath+".sub_topics", mainObj["sub_topics"])
		if err != nil {
			return nil, err
		}
		if len(subs) == 0 {
			return nil, schemaErr(mainPath+".sub_topics", "non-empty array", "empty array")
		}
		main := OutlineMainTopic{Title: title}
		for j, rawSub := range subs {
			subPath := fmt.Sprintf("%s.sub_topics[%d]", mainPath, j)
			subObj, err := decodeObject(subPath, string(rawSub), []string{"title"})
			if err != nil {
				return nil, err
			}
			subTitle, err := decodeString(subPath+".title", subObj["title"])
			if err != nil {
				return nil, err
			}
			if strings.TrimSpace(subTitle) == "" {
				return nil, schemaErr(subPath+".title", "non-empty string", "empty string")
			}
			main.SubTopics = append(main.SubTopics, OutlineSubTopic{Title: subTitle})
		}
		out.MainTopics = append(out.MainTopics, main)
	}
	return out, nil
}

const scoreEpsilon = 1e-6

// ParseRubricSchema 解析并校验评分细则。maxCeiling为该层级允许的总分上限
func ParseRubricSchema(raw string, maxCeiling float64) (*RubricSchema, error) {
	cleaned := StripCodeFence(raw)
	obj, err := decodeObject("$", cleaned, []string{"max_total_score", "criteria"})
	if err != nil {
		return nil, err
	}
	total, err := decodeNumber("max_total_score", obj["max_total_score"])
	if err != nil {
		return nil, err
	}
	if total <= 0 {
		return nil, schemaErr("max_total_score", "positive number", fmt.Sprintf("%g", total))
	}
	if maxCeiling > 0 && total > maxCeiling+scoreEpsilon {
		return nil, schemaErr("max_total_score",
			fmt.Sprintf("at most %g", maxCeiling), fmt.Sprintf("%g", total))
	}
	criteria, err := decodeArray("criteria", obj["criteria"])
	if err != nil {
		return nil, err
	}
	if len(criteria) < 3 || len(criteria) > 6 {
		return nil, schemaErr("criteria", "3 to 6 items", fmt.Sprintf("%d items", len(criteria)))
	}

	schema := &RubricSchema{MaxTotalScore: total}
	sum := 0.0
	seen := make(map[string]struct{}, len(criteria))
	for i, rawItem := range criteria {
		path := fmt.Sprintf("criteria[%d]", i)
		item, err := decodeObject(path, string(rawItem), []string{"key", "description", "max_score"})
		if err != nil {
			return nil, err
		}
		key, err := decodeString(path+".key", item["key"])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(key) == "" {
			return nil, schemaErr(path+".key", "non-empty string", "empty string")
		}
		if _, dup := seen[key]; dup {
			return nil, schemaErr(path+".key", "unique key", fmt.Sprintf("duplicate %q", key))
		}
		seen[key] = struct{}{}
		desc, err := decodeString(path+".description", item["description"])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(desc) == "" {
			return nil, schemaErr(path+".description", "non-empty string", "empty string")
		}
		score, err := decodeNumber(path+".max_score", item["max_score"])
		if err != nil {
			return nil, err
		}
		if score <= 0 {
			return nil, schemaErr(path+".max_score", "positive number", fmt.Sprintf("%g", score))
		}
		sum += score
		schema.Criteria = append(schema.Criteria, RubricCriterion{Key: key, Description: desc, MaxScore: score})
	}
	if math.Abs(sum-total) > scoreEpsilon {
		return nil, schemaErr("criteria",
			fmt.Sprintf("max_score sum equal to max_total_score %g", total),
			fmt.Sprintf("sum %g", sum))
	}
	return schema, nil
}

var mcqChoiceKeys = []string{"A", "B", "C", "D"}

// ParseMCQ 解析并校验选择题
func ParseMCQ(raw string) (*MCQ, error) {
	cleaned := StripCodeFence(raw)
	obj, err := decodeObject("$", cleaned, []string{"question", "choices", "answer", "explanation"})
	if err != nil {
		return nil, err
	}
	question, err := decodeString("question", obj["question"])
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, schemaErr("question", "non-empty string", "empty string")
	}
	choicesObj, err := decodeObject("choices", string(obj["choices"]), mcqChoiceKeys)
	if err != nil {
		return nil, err
	}
	choices := make(map[string]string, len(mcqChoiceKeys))
	for _, k := range mcqChoiceKeys {
		v, err := decodeString("choices."+k, choicesObj[k])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(v) == "" {
			return nil, schemaErr("choices."+k, "non-empty string", "empty string")
		}
		choices[k] = v
	}
	answer, err := decodeString("answer", obj["answer"])
	if err != nil {
		return nil, err
	}
	if _, ok := choices[answer]; !ok {
		return nil, schemaErr("answer", "one of {A, B, C, D}", fmt.Sprintf("%q", answer))
	}
	explanation, err := decodeString("explanation", obj["explanation"])
	if err != nil {
		return nil, err
	}
	return &MCQ{Question: question, Choices: choices, Answer: answer, Explanation: explanation}, nil
}

// ParseEvaluation 解析并校验评分结果。总分与分项都不得越界
func ParseEvaluation(raw string, maxScore float64) (*Evaluation, error) {
	cleaned := StripCodeFence(raw)
	obj, err := decodeObject("$", cleaned, []string{"total_score", "feedback", "detail_scores"})
	if err != nil {
		return nil, err
	}
	total, err := decodeNumber("total_score", obj["total_score"])
	if err != nil {
		return nil, err
	}
	if total < 0 || total > maxScore+scoreEpsilon {
		return nil, schemaErr("total_score",
			fmt.Sprintf("number in [0, %g]", maxScore), fmt.Sprintf("%g", total))
	}
	feedback, err := decodeString("feedback", obj["feedback"])
	if err != nil {
		return nil, err
	}
	detailObj, err := decodeObject("detail_scores", string(obj["detail_scores"]), []string{"items"})
	if err != nil {
		return nil, err
	}
	items, err := decodeArray("detail_scores.items", detailObj["items"])
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, schemaErr("detail_scores.items", "non-empty array", "empty array")
	}

	eval := &Evaluation{TotalScore: total, Feedback: feedback}
	for i, rawItem := range items {
		path := fmt.Sprintf("detail_scores.items[%d]", i)
		item, err := decodeObject(path, string(rawItem), []string{"key", "score", "max_score", "evaluation"})
		if err != nil {
			return nil, err
		}
		key, err := decodeString(path+".key", item["key"])
		if err != nil {
			return nil, err
		}
		score, err := decodeNumber(path+".score", item["score"])
		if err != nil {
			return nil, err
		}
		itemMax, err := decodeNumber(path+".max_score", item["max_score"])
		if err != nil {
			return nil, err
		}
		if score < 0 || score > itemMax+scoreEpsilon {
			return nil, schemaErr(path+".score",
				fmt.Sprintf("number in [0, %g]", itemMax), fmt.Sprintf("%g", score))
		}
		comment, err := decodeString(path+".evaluation", item["evaluation"])
		if err != nil {
			return nil, err
		}
		eval.DetailScores.Items = append(eval.DetailScores.Items, DetailScoreItem{
			Key: key, Score: score, MaxScore: itemMax, Evaluation: comment,
		})
	}
	return eval, nil
}

// ParseLectureTopics 解析讲义大纲
func ParseLectureTopics(raw string) ([]LectureTopicItem, error) {
	cleaned := StripCodeFence(raw)
	obj, err := decodeObject("$", cleaned, []string{"topics"})
	if err != nil {
		return nil, err
	}
	arr, err := decodeArray("topics", obj["topics"])
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, schemaErr("topics", "non-empty array", "empty array")
	}
	topics := make([]LectureTopicItem, 0, len(arr))
	for i, rawItem := range arr {
		path := fmt.Sprintf("topics[%d]", i)
		item, err := decodeObject(path, string(rawItem), []string{"order", "title"})
		if err != nil {
			return nil, err
		}
		order, err := decodeNumber(path+".order", item["order"])
		if err != nil {
			return nil, err
		}
		title, err := decodeString(path+".title", item["title"])
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(title) == "" {
			return nil, schemaErr(path+".title", "non-empty string", "empty string")
		}
		topics = append(topics, LectureTopicItem{Order: int(order), Title: title})
	}
	sort.SliceStable(topics, func(a, b int) bool { return topics[a].Order < topics[b].Order })
	return topics, nil
}
