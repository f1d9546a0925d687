package verdict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
)

// Verdict 校验通过后的模型输出
type Verdict struct {
	Scores    domain.ScoreSet
	Narrative domain.Narrative
	// ReportedOverall 模型自报的总分，只用于日志对比，不入库
	ReportedOverall *float64
}

// Validator 按 rubric 校验模型原始输出
type Validator struct {
	rubric *domain.Rubric
}

func NewValidator(rubric *domain.Rubric) *Validator {
	if rubric == nil {
		rubric = domain.DefaultRubric()
	}
	return &Validator{rubric: rubric}
}

// Normalize 解析并校验模型输出。任何一个维度不合格都整体失败，错误中列出全部失败维度
func (v *Validator) Normalize(raw string) (*Verdict, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, v.failAll("response is not a JSON object", err)
	}

	scoresRaw, ok := obj["scores"]
	if !ok {
		return nil, v.failAll("missing \"scores\" object", nil)
	}
	scores, err := decodeObject(scoresRaw)
	if err != nil {
		return nil, v.failAll("\"scores\" is not an object", err)
	}

	out := &Verdict{Scores: make(domain.ScoreSet, len(v.rubric.Criteria))}
	var failures []common.CriterionFailure
	for _, c := range v.rubric.Criteria {
		entry, reason := v.checkEntry(c.Key, scores[string(c.Key)])
		if reason != "" {
			failures = append(failures, common.CriterionFailure{Criterion: string(c.Key), Reason: reason})
			continue
		}
		out.Scores[c.Key] = entry
	}
	if len(failures) > 0 {
		return nil, &common.MalformedResponseError{Failures: failures}
	}

	for _, key := range domain.NarrativeKeys {
		var s string
		if rawVal, ok := obj[key]; ok && json.Unmarshal(rawVal, &s) == nil {
			*out.Narrative.Field(key) = strings.TrimSpace(s)
		}
	}

	if rawVal, ok := obj["overall_score"]; ok {
		if n, ok := decodeNumber(rawVal); ok {
			if f, err := n.Float64(); err == nil {
				out.ReportedOverall = &f
			}
		}
	}
	return out, nil
}

func (v *Validator) checkEntry(key domain.Criterion, raw json.RawMessage) (domain.ScoreEntry, string) {
	if raw == nil {
		return domain.ScoreEntry{}, "missing"
	}
	fields, err := decodeObject(raw)
	if err != nil {
		return domain.ScoreEntry{}, "not an object"
	}

	scoreRaw, ok := fields["score"]
	if !ok {
		return domain.ScoreEntry{}, "missing score"
	}
	n, ok := decodeNumber(scoreRaw)
	if !ok {
		return domain.ScoreEntry{}, fmt.Sprintf("score must be a number, got %s", jsonKind(scoreRaw))
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return domain.ScoreEntry{}, fmt.Sprintf("score %s is not an integer", n.String())
	}
	score := int(f)
	if float64(score) != f || !v.rubric.InRange(score) {
		return domain.ScoreEntry{}, fmt.Sprintf("score %s outside %d-%d", n.String(), v.rubric.Scale.Min, v.rubric.Scale.Max)
	}

	var justification string
	if jr, ok := fields["justification"]; !ok || json.Unmarshal(jr, &justification) != nil {
		return domain.ScoreEntry{}, "justification must be a string"
	}
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return domain.ScoreEntry{}, "empty justification"
	}

	return domain.ScoreEntry{Criterion: key, Score: score, Justification: justification}, ""
}

func (v *Validator) failAll(reason string, cause error) error {
	failures := make([]common.CriterionFailure, 0, len(v.rubric.Criteria))
	for _, c := range v.rubric.Criteria {
		failures = append(failures, common.CriterionFailure{Criterion: string(c.Key), Reason: reason})
	}
	return &common.MalformedResponseError{Failures: failures, Err: cause}
}

// extractObject 智能寻找 JSON 的起止位置，兼容 ```json ... ``` 包裹
func extractObject(raw string) (map[string]json.RawMessage, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found")
	}
	return decodeObject(json.RawMessage(raw[start : end+1]))
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("null")
	}
	return obj, nil
}

// decodeNumber 只接受 JSON 数字，字符串形式的 "8" 不算
func decodeNumber(raw json.RawMessage) (json.Number, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var val interface{}
	if err := dec.Decode(&val); err != nil {
		return "", false
	}
	n, ok := val.(json.Number)
	return n, ok
}

func jsonKind(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "nothing"
	}
	switch trimmed[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	}
	return "unknown"
}
