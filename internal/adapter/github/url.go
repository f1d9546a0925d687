package github

import (
	"fmt"
	"net/url"
	"strings"

	"hackathon-judge/internal/common"
)

var supportedHosts = map[string]bool{
	"github.com":     true,
	"www.github.com": true,
}

// RepoRef 解析后的仓库坐标
type RepoRef struct {
	Owner string
	Name  string
	// Ref 来自 /tree/<ref> 形式的 URL，可能为空
	Ref string
}

// ParseRepoURL 支持 https://github.com/o/r、带 .git 后缀、带 /tree/<ref> 的形式
func ParseRepoURL(raw string) (RepoRef, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return RepoRef{}, common.WrapError(common.ErrCodeInvalidInput, fmt.Sprintf("无法解析仓库URL %q", raw), err)
	}
	if !supportedHosts[strings.ToLower(u.Host)] {
		return RepoRef{}, common.NewError(common.ErrCodeIngestUnavailable, fmt.Sprintf("unsupported code host %q", u.Host))
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("仓库URL %q 路径格式不正确", raw))
	}

	ref := RepoRef{
		Owner: parts[0],
		Name:  strings.TrimSuffix(parts[1], ".git"),
	}
	if len(parts) >= 4 && parts[2] == "tree" {
		ref.Ref = strings.Join(parts[3:], "/")
	}
	return ref, nil
}
