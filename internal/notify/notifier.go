package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"
)

// Event 终态通知内容，变量面向邮件/消息模板
type Event struct {
	ActionID        int64      `json:"action_id"`
	ActionType      string     `json:"action_type"`
	AppID           string     `json:"app_id"`
	EnvironmentName string     `json:"environment_name"`
	Status          string     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Duration        string     `json:"duration,omitempty"`
	AttemptCount    int        `json:"attempt_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	Summary         string     `json:"summary"`
}

// Notifier 终态回调。失败只记日志，不影响动作状态（fire-and-forget）。
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Nop 关闭通知时使用
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(ctx context.Context, event Event) {}

const summaryTemplate = `Cloud action {{.ActionType}} on environment {{.EnvironmentName}} {{.Status}}{{if .Duration}} after {{.Duration}}{{end}} (attempt {{.AttemptCount}}){{if .ErrorMessage}}: {{.ErrorMessage}}{{end}}`

var summaryTmpl = template.Must(template.New("summary").Parse(summaryTemplate))

// RenderSummary 渲染通知摘要文本
func RenderSummary(event Event) (string, error) {
	var buf bytes.Buffer
	if err := summaryTmpl.Execute(&buf, event); err != nil {
		return "", fmt.Errorf("failed to render notification summary: %w", err)
	}
	return buf.String(), nil
}

// FillDerived 补齐Duration与Summary派生字段
func FillDerived(event *Event) {
	if event.Duration == "" && event.StartedAt != nil && event.CompletedAt != nil {
		event.Duration = event.CompletedAt.Sub(*event.StartedAt).Round(time.Second).String()
	}
	if event.Summary == "" {
		if summary, err := RenderSummary(*event); err == nil {
			event.Summary = summary
		}
	}
}

// Webhook 把通知POST给外部投递方（邮件网关等）
type Webhook struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewWebhook 创建webhook通知器
func NewWebhook(url string, timeout time.Duration, logger *logrus.Entry) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithField("component", "notifier"),
	}
}

// Notify implements Notifier
func (w *Webhook) Notify(ctx context.Context, event Event) {
	FillDerived(&event)

	body, err := json.Marshal(event)
	if err != nil {
		w.logger.Errorf("Failed to marshal notification for action %d: %v", event.ActionID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Errorf("Failed to create notification request for action %d: %v", event.ActionID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Errorf("Failed to deliver notification for action %d: %v", event.ActionID, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		w.logger.Errorf("Notification webhook returned status %d for action %d", resp.StatusCode, event.ActionID)
		return
	}
	w.logger.Infof("Notification delivered for action %d (%s)", event.ActionID, strings.ToLower(event.Status))
}
