package prompt

import (
	"fmt"
	"strings"

	"hackathon-judge/internal/domain"
)

// Builder 把仓库摘要、题目描述和评分标准拼成一个 prompt。纯函数，不含时间戳等可变内容
type Builder struct {
	rubric *domain.Rubric
}

// NewBuilder rubric 为空时使用默认 rubric
func NewBuilder(rubric *domain.Rubric) *Builder {
	if rubric == nil {
		rubric = domain.DefaultRubric()
	}
	return &Builder{rubric: rubric}
}

// Rubric 当前使用的评分标准
func (b *Builder) Rubric() *domain.Rubric {
	return b.rubric
}

// Build 生成 prompt，相同输入产生相同输出
func (b *Builder) Build(digest *domain.RepositoryDigest, problemStatement string) string {
	r := b.rubric
	var sb strings.Builder

	sb.WriteString(r.Context)
	sb.WriteString("\n\n")

	sb.WriteString("## Problem statement\n")
	if ps := strings.TrimSpace(problemStatement); ps != "" {
		sb.WriteString(ps)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("None provided. Infer the intended purpose of the project from the repository itself.\n\n")
	}

	fmt.Fprintf(&sb, "## Evaluation criteria (rubric %s)\n", r.Version)
	fmt.Fprintf(&sb, "Score every criterion with an integer from %d (worst) to %d (best).\n", r.Scale.Min, r.Scale.Max)
	for i, c := range r.Criteria {
		fmt.Fprintf(&sb, "%d. %s (key: %s)", i+1, c.Title, c.Key)
		if c.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(c.Description)
		}
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	sb.WriteString("## Repository digest\n")
	fmt.Fprintf(&sb, "The digest below contains %d files", len(digest.FileEntries))
	if n := digest.TruncatedCount(); n > 0 {
		fmt.Fprintf(&sb, ", %d of them truncated to fit the size limit. Do not penalise content that is merely cut off", n)
	}
	sb.WriteString(".\n\n")
	sb.WriteString(digest.Render())
	sb.WriteString("\n")

	sb.WriteString("## Response format\n")
	sb.WriteString("Respond with a single JSON object and nothing else: no Markdown fences, no commentary.\n")
	sb.WriteString("Every criterion key below is required. \"score\" must be a JSON integer, not a string.\n")
	sb.WriteString(b.schema())
	sb.WriteString("\n")

	if len(r.Narrative) > 0 {
		sb.WriteString("\nNarrative fields:\n")
		for _, n := range r.Narrative {
			fmt.Fprintf(&sb, "- %s: %s\n", n.Key, n.Instruction)
		}
	}
	return sb.String()
}

// schema 按 rubric 顺序生成 JSON 模板
func (b *Builder) schema() string {
	r := b.rubric
	var sb strings.Builder
	sb.WriteString("{\n  \"scores\": {\n")
	for i, c := range r.Criteria {
		fmt.Fprintf(&sb, "    %q: {\"score\": <integer %d-%d>, \"justification\": \"<string>\"}", string(c.Key), r.Scale.Min, r.Scale.Max)
		if i < len(r.Criteria)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  },\n")
	fmt.Fprintf(&sb, "  \"overall_score\": <number %d-%d>", r.Scale.Min, r.Scale.Max)
	for _, n := range r.Narrative {
		fmt.Fprintf(&sb, ",\n  %q: \"<string>\"", n.Key)
	}
	sb.WriteString("\n}")
	return sb.String()
}
