package domain

import (
	"fmt"
	"strings"
)

// FileEntry 摘要中的单个文件
type FileEntry struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// RepositoryDigest 仓库的有界文本摘要，只存在于一次评审流程中，不落库
type RepositoryDigest struct {
	SourceURL   string      `json:"source_url"`
	Ref         string      `json:"ref"`
	Tree        []string    `json:"tree"`
	TreeOmitted int         `json:"tree_omitted"`
	Commits     []string    `json:"commits"`
	FileEntries []FileEntry `json:"file_entries"`

	// TotalSizeEstimate 等于 Render() 的字节长度
	TotalSizeEstimate int `json:"total_size_estimate"`
}

// Render 生成送入 prompt 的摘要文本，相同输入输出逐字节一致
func (d *RepositoryDigest) Render() string {
	var b strings.Builder
	b.WriteString(d.RenderPreamble())
	for _, e := range d.FileEntries {
		b.WriteString(RenderEntry(e))
	}
	return b.String()
}

// RenderPreamble 文件内容之前的部分：头信息、目录树、最近提交和 Content 标题
func (d *RepositoryDigest) RenderPreamble() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", d.SourceURL)
	fmt.Fprintf(&b, "Ref: %s\n\n", d.Ref)

	b.WriteString("# Tree\n")
	for _, line := range d.Tree {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if d.TreeOmitted > 0 {
		fmt.Fprintf(&b, "... (%d more entries)\n", d.TreeOmitted)
	}
	b.WriteByte('\n')

	b.WriteString("# Recent commits\n")
	if len(d.Commits) == 0 {
		b.WriteString("(unavailable)\n")
	}
	for _, line := range d.Commits {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	b.WriteString("# Content\n")
	return b.String()
}

// RenderEntry 单个文件块
func RenderEntry(e FileEntry) string {
	var b strings.Builder
	b.WriteString(beginMarker(e.Path))
	b.WriteString(e.Content)
	if e.Content != "" && !strings.HasSuffix(e.Content, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(endMarker(e.Path, e.Truncated))
	b.WriteByte('\n')
	return b.String()
}

// EntryOverhead 文件块除内容外最多占用的字节数（含可能补上的换行）
func EntryOverhead(path string, truncated bool) int {
	return len(beginMarker(path)) + len(endMarker(path, truncated)) + 2
}

// Seal 计算 TotalSizeEstimate
func (d *RepositoryDigest) Seal() {
	d.TotalSizeEstimate = len(d.Render())
}

// TruncatedCount 被截断的文件数
func (d *RepositoryDigest) TruncatedCount() int {
	n := 0
	for _, e := range d.FileEntries {
		if e.Truncated {
			n++
		}
	}
	return n
}

func beginMarker(path string) string {
	return "===== BEGIN " + path + " =====\n"
}

func endMarker(path string, truncated bool) string {
	if truncated {
		return "===== END " + path + " (truncated) =====\n"
	}
	return "===== END " + path + " =====\n"
}
