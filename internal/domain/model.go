package domain

import (
	"encoding/json"
	"time"
)

// Criterion 评分维度名，取值来自 Rubric
type Criterion string

// 默认评审维度
const (
	CriterionCodeQuality    Criterion = "code_quality"
	CriterionCompleteness   Criterion = "completeness"
	CriterionEfficiency     Criterion = "efficiency"
	CriterionErrorHandling  Criterion = "error_handling"
	CriterionVersionControl Criterion = "version_control"
	CriterionTechnologyUse  Criterion = "technology_use"
)

// ScoreEntry 单个维度的得分与理由
type ScoreEntry struct {
	Criterion     Criterion `json:"-"`
	Score         int       `json:"score"`
	Justification string    `json:"justification"`
}

// ScoreSet criterion -> ScoreEntry。序列化时 key 即维度名，反序列化时回填 Criterion 字段
type ScoreSet map[Criterion]ScoreEntry

func (s *ScoreSet) UnmarshalJSON(b []byte) error {
	var raw map[Criterion]ScoreEntry
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		v.Criterion = k
		raw[k] = v
	}
	*s = raw
	return nil
}

// Narrative 模型给出的文字评语，均可缺省；summary_assessment 在 JSON 中始终输出
type Narrative struct {
	SummaryAssessment      string `json:"summary_assessment" gorm:"type:text"`
	TechnicalOverview      string `json:"technical_overview,omitempty" gorm:"type:text"`
	DescriptionOfJudgement string `json:"description_of_judgement,omitempty" gorm:"type:text"`
	Conclusion             string `json:"conclusion,omitempty" gorm:"type:text"`
	WhatsMissing           string `json:"whats_missing,omitempty" gorm:"type:text"`
	WhatToInclude          string `json:"what_to_include,omitempty" gorm:"type:text"`
	HowToMakeItBetter      string `json:"how_to_make_it_better,omitempty" gorm:"type:text"`
	WhyAWinningProduct     string `json:"why_a_winning_product,omitempty" gorm:"type:text"`
	WhyALosingProduct      string `json:"why_a_losing_product,omitempty" gorm:"type:text"`
}

// NarrativeKeys 所有已知的评语字段，顺序即 prompt 中的顺序
var NarrativeKeys = []string{
	"summary_assessment",
	"technical_overview",
	"description_of_judgement",
	"conclusion",
	"whats_missing",
	"what_to_include",
	"how_to_make_it_better",
	"why_a_winning_product",
	"why_a_losing_product",
}

// Field 返回 key 对应字段的指针，未知 key 返回 nil
func (n *Narrative) Field(key string) *string {
	switch key {
	case "summary_assessment":
		return &n.SummaryAssessment
	case "technical_overview":
		return &n.TechnicalOverview
	case "description_of_judgement":
		return &n.DescriptionOfJudgement
	case "conclusion":
		return &n.Conclusion
	case "whats_missing":
		return &n.WhatsMissing
	case "what_to_include":
		return &n.WhatToInclude
	case "how_to_make_it_better":
		return &n.HowToMakeItBetter
	case "why_a_winning_product":
		return &n.WhyAWinningProduct
	case "why_a_losing_product":
		return &n.WhyALosingProduct
	}
	return nil
}

// AnalysisRecord 一次完整评审的结果，入库后不可修改
type AnalysisRecord struct {
	ID               string   `json:"id" gorm:"primaryKey;size:36"`
	RepoURL          string   `json:"repo_url" gorm:"index;not null"`
	Ref              string   `json:"ref,omitempty"`
	ProblemStatement string   `json:"problem_statement" gorm:"type:text"`
	RubricVersion    string   `json:"rubric_version"`
	Scores           ScoreSet `json:"scores" gorm:"serializer:json;type:text;not null"`
	OverallScore     float64  `json:"overall_score" gorm:"index"`

	Narrative

	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName 表名
func (AnalysisRecord) TableName() string {
	return "analyses"
}

// AnalysisSummary 列表页需要的字段
type AnalysisSummary struct {
	ID           string    `json:"id"`
	RepoURL      string    `json:"repo_url"`
	OverallScore float64   `json:"overall_score"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilter 列表查询条件，零值表示不过滤
type ListFilter struct {
	RepoURL string
	Limit   int
	Offset  int
}

// SubmitRequest 一次评审请求
type SubmitRequest struct {
	RepoURL          string `json:"repo_url" validate:"required,url,max=2048"`
	ProblemStatement string `json:"problem_statement" validate:"max=20000"`
	Ref              string `json:"ref" validate:"max=255"`
}
