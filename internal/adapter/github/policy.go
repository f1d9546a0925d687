package github

import (
	"bytes"
	"path"
	"sort"
	"strings"
)

// PolicyVersion 选择规则有任何变化都要升级版本号，摘要的确定性以 URL+ref+版本 为前提
const PolicyVersion = "select-2025.1"

// Policy 摘要的选择与截断规则
type Policy struct {
	Version string
	// BudgetBytes 渲染后摘要的总字节上限
	BudgetBytes int
	// MaxFileBytes 单个文件保留的最大字节数，超出部分截断
	MaxFileBytes int
	// SkipAboveBytes 超过该大小的文件直接跳过
	SkipAboveBytes int
	MaxFiles       int
	TreeDepth      int
	MaxCommits     int
}

// DefaultPolicy 默认规则
func DefaultPolicy() Policy {
	return Policy{
		Version:        PolicyVersion,
		BudgetBytes:    200 * 1024,
		MaxFileBytes:   16 * 1024,
		SkipAboveBytes: 100 * 1024,
		MaxFiles:       200,
		TreeDepth:      4,
		MaxCommits:     20,
	}
}

// withDefaults 零值字段使用默认值
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Version == "" {
		p.Version = d.Version
	}
	if p.BudgetBytes <= 0 {
		p.BudgetBytes = d.BudgetBytes
	}
	if p.MaxFileBytes <= 0 {
		p.MaxFileBytes = d.MaxFileBytes
	}
	if p.SkipAboveBytes <= 0 {
		p.SkipAboveBytes = d.SkipAboveBytes
	}
	if p.MaxFiles <= 0 {
		p.MaxFiles = d.MaxFiles
	}
	if p.TreeDepth <= 0 {
		p.TreeDepth = d.TreeDepth
	}
	if p.MaxCommits < 0 {
		p.MaxCommits = 0
	}
	return p
}

var sourceExts = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true, ".go": true,
	".rs": true, ".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".kt": true, ".swift": true, ".dart": true, ".php": true, ".rb": true, ".cs": true,
	".scala": true, ".vue": true, ".svelte": true, ".sql": true, ".sh": true,
	".bat": true, ".ps1": true, ".html": true, ".css": true, ".scss": true,
}

var textExts = map[string]bool{
	".json": true, ".yml": true, ".yaml": true, ".toml": true, ".ini": true,
	".md": true, ".rst": true, ".txt": true, ".cfg": true, ".env.example": true,
	".mod": true, ".gradle": true, ".xml": true, ".proto": true, ".graphql": true,
}

// 根目录下优先放入摘要的文件，大小写不敏感
var manifestNames = map[string]bool{
	"readme": true, "readme.md": true, "readme.rst": true, "readme.txt": true,
	"go.mod": true, "package.json": true, "requirements.txt": true, "pyproject.toml": true,
	"setup.py": true, "cargo.toml": true, "pom.xml": true, "build.gradle": true,
	"dockerfile": true, "docker-compose.yml": true, "docker-compose.yaml": true,
	"makefile": true, ".gitignore": true,
}

// 无扩展名但属于文本的常见文件
var wellKnownNames = map[string]bool{
	"dockerfile": true, "makefile": true, "procfile": true, "readme": true,
	".gitignore": true, ".dockerignore": true, ".editorconfig": true,
}

var excludedDirs = map[string]bool{
	".git": true, "vendor": true, "node_modules": true, "dist": true, "build": true,
	"target": true, "out": true, "bin": true, "obj": true, "__pycache__": true,
	".venv": true, "venv": true, "env": true, ".next": true, ".nuxt": true,
	".idea": true, ".vscode": true, "coverage": true, "third_party": true,
	".gradle": true, ".dart_tool": true, "Pods": true,
}

var lockFiles = map[string]bool{
	"package-lock.json": true, "yarn.lock": true, "pnpm-lock.yaml": true, "go.sum": true,
	"cargo.lock": true, "poetry.lock": true, "pipfile.lock": true, "composer.lock": true,
	"gemfile.lock": true, "pubspec.lock": true, "bun.lockb": true,
}

var generatedSuffixes = []string{
	".min.js", ".min.css", ".map", ".pb.go", "_pb2.py", "_pb2_grpc.py",
	".generated.go", ".g.dart", ".freezed.dart", ".snap",
}

// inExcludedDir 路径上任何一级目录被排除即为 true
func inExcludedDir(p string) bool {
	dirs := strings.Split(p, "/")
	for _, d := range dirs[:len(dirs)-1] {
		if excludedDirs[d] {
			return true
		}
	}
	return false
}

func isGenerated(p string) bool {
	base := strings.ToLower(path.Base(p))
	if lockFiles[base] {
		return true
	}
	for _, s := range generatedSuffixes {
		if strings.HasSuffix(base, s) {
			return true
		}
	}
	return false
}

// eligible 判断文件是否可进入摘要（内容层面的二进制检查在下载后进行）
func (p Policy) eligible(filePath string, size int) bool {
	if size > p.SkipAboveBytes {
		return false
	}
	if inExcludedDir(filePath) || isGenerated(filePath) {
		return false
	}
	base := strings.ToLower(path.Base(filePath))
	if wellKnownNames[base] {
		return true
	}
	ext := strings.ToLower(path.Ext(base))
	return sourceExts[ext] || textExts[ext]
}

// tier 越小越优先：0 根目录清单/README，1 源码，2 其他文本
func tier(filePath string) int {
	base := strings.ToLower(path.Base(filePath))
	if !strings.Contains(filePath, "/") && manifestNames[base] {
		return 0
	}
	if sourceExts[strings.ToLower(path.Ext(base))] {
		return 1
	}
	return 2
}

func depth(p string) int {
	return strings.Count(p, "/")
}

type candidate struct {
	path string
	sha  string
	size int
}

// sortCandidates 按 tier、目录深度、路径排序，结果与 API 返回顺序无关
func sortCandidates(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		ti, tj := tier(cs[i].path), tier(cs[j].path)
		if ti != tj {
			return ti < tj
		}
		di, dj := depth(cs[i].path), depth(cs[j].path)
		if di != dj {
			return di < dj
		}
		return cs[i].path < cs[j].path
	})
}

// isBinary 前 1024 字节中出现 NUL 视为二进制
func isBinary(content []byte) bool {
	n := len(content)
	if n > 1024 {
		n = 1024
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

type treeNode struct {
	path  string
	isDir bool
}

// renderTree 深度受限的缩进目录树；被排除目录本身保留，子项省略
func renderTree(nodes []treeNode, maxDepth int) []string {
	sorted := make([]treeNode, len(nodes))
	copy(sorted, nodes)
	// 子项必须紧跟在父目录之后，比较时让 '/' 排在所有可见字符之前
	key := func(p string) string { return strings.ReplaceAll(p, "/", "\x01") }
	sort.Slice(sorted, func(i, j int) bool { return key(sorted[i].path) < key(sorted[j].path) })

	var lines []string
	for _, n := range sorted {
		d := depth(n.path)
		if d >= maxDepth || inExcludedDir(n.path) {
			continue
		}
		line := strings.Repeat("  ", d) + path.Base(n.path)
		if n.isDir {
			line += "/"
		}
		lines = append(lines, line)
	}
	return lines
}

// clampLines 在 maxBytes 内尽量保留前面的行，返回保留的行与被省略的行数
func clampLines(lines []string, maxBytes int) ([]string, int) {
	used := 0
	for i, l := range lines {
		used += len(l) + 1
		if used > maxBytes {
			return lines[:i], len(lines) - i
		}
	}
	return lines, 0
}
