package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
	"hackathon-judge/internal/logger"
)

type Notifier struct {
	webhookURL string
	client     *http.Client
	retry      []common.Option
}

// webhookReply 飞书在 HTTP 200 时也可能返回非 0 code
type webhookReply struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewNotifier(webhook string) *Notifier {
	if webhook == "" {
		logger.WithComponent("feishu").Warn("⚠️ 飞书 Webhook 为空，推送功能将无法工作！")
	}
	return &Notifier{
		webhookURL: webhook,
		client:     &http.Client{Timeout: 10 * time.Second},
		retry: []common.Option{
			common.WithMaxRetries(3),
			common.WithInitialDelay(500 * time.Millisecond),
		},
	}
}

// Notify 发送飞书卡片消息 (Schema 2.0)
func (n *Notifier) Notify(ctx context.Context, rec *domain.AnalysisRecord) error {
	if n.webhookURL == "" {
		return common.NewError(common.ErrCodeNotification, "Webhook URL 为空")
	}

	body, err := json.Marshal(buildCard(rec))
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "构造卡片失败", err)
	}

	// 发送请求 (带重试机制)
	err = common.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if reqErr != nil {
			return reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, postErr := n.client.Do(req)
		if postErr != nil {
			return postErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("飞书 API 报错: 状态码 %d", resp.StatusCode)
		}
		var reply webhookReply
		if err := json.NewDecoder(resp.Body).Decode(&reply); err == nil && reply.Code != 0 {
			return fmt.Errorf("飞书 API 报错: code=%d msg=%s", reply.Code, reply.Msg)
		}
		return nil
	}, n.retry...)
	if err != nil {
		return common.WrapError(common.ErrCodeNotification, "发送请求失败", err)
	}
	return nil
}

// buildCard 标题带总分，正文按维度名排序列出分数
func buildCard(rec *domain.AnalysisRecord) map[string]interface{} {
	title := fmt.Sprintf("🏆 评审完成: %s (%.1f)", repoName(rec.RepoURL), rec.OverallScore)

	keys := make([]string, 0, len(rec.Scores))
	for k := range rec.Scores {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var md strings.Builder
	fmt.Fprintf(&md, "**🏆 总分:** %.1f  |  **Rubric:** %s  |  **时间:** %s\n\n",
		rec.OverallScore, rec.RubricVersion, rec.CreatedAt.Format("2006-01-02 15:04"))
	for _, k := range keys {
		e := rec.Scores[domain.Criterion(k)]
		fmt.Fprintf(&md, "- **%s:** %d  %s\n", k, e.Score, e.Justification)
	}
	if rec.SummaryAssessment != "" {
		fmt.Fprintf(&md, "\n**📝 总评:**\n%s\n", rec.SummaryAssessment)
	}

	template := "blue"
	switch {
	case rec.OverallScore >= 8:
		template = "green"
	case rec.OverallScore < 5:
		template = "red"
	}

	return map[string]interface{}{
		"msg_type": "interactive",
		"card": map[string]interface{}{
			"schema": "2.0",
			"config": map[string]interface{}{
				"update_multi": true,
			},
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": template,
			},
			"body": map[string]interface{}{
				"direction": "vertical",
				"elements": []map[string]interface{}{
					{
						"tag":       "markdown",
						"content":   md.String(),
						"text_size": "normal",
					},
					{
						"tag": "button",
						"text": map[string]interface{}{
							"tag":     "plain_text",
							"content": "🔗 查看源码",
						},
						"type": "primary",
						"behaviors": []map[string]interface{}{
							{
								"type":        "open_url",
								"default_url": rec.RepoURL,
							},
						},
					},
				},
			},
		},
	}
}

func repoName(url string) string {
	s := strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	parts := strings.Split(s, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return s
}
