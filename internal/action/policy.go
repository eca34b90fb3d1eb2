package action

import (
	"time"

	"mxops/internal/model"
)

// 重试与心跳策略。数值是策略而非巧合：
// 步骤级失败最多3次；第k次失败后退避k分钟再排队；
// running行心跳超过45秒未刷新视为worker失联，可被重新认领。
const (
	MaxAttempts         = 3
	HeartbeatStaleAfter = 45 * time.Second
)

// 各动作类型的默认总时限（retry_until缺省值）
var defaultRetryWindows = map[model.CloudActionType]time.Duration{
	model.CloudActionTypeStart:     30 * time.Minute,
	model.CloudActionTypeStop:      30 * time.Minute,
	model.CloudActionTypeRestart:   30 * time.Minute,
	model.CloudActionTypeTransport: 60 * time.Minute,
	model.CloudActionTypeDeploy:    90 * time.Minute,
}

// DefaultRetryWindow 返回类型的默认执行时限
func DefaultRetryWindow(actionType model.CloudActionType) time.Duration {
	if d, ok := defaultRetryWindows[actionType]; ok {
		return d
	}
	return 30 * time.Minute
}

// retryDelay 第attempts次失败后的再调度延迟（线性：attempts分钟）
func retryDelay(attempts int) time.Duration {
	return time.Duration(attempts) * time.Minute
}

// terminalAfterFailure 第attempts次失败后动作是否终结
func terminalAfterFailure(attempts int, fatal bool) bool {
	return fatal || attempts >= MaxAttempts
}

// heartbeatStale 心跳是否已过期。没有心跳的running行一律视为过期。
func heartbeatStale(lastHeartbeat *time.Time, now time.Time) bool {
	if lastHeartbeat == nil {
		return true
	}
	return now.Sub(*lastHeartbeat) > HeartbeatStaleAfter
}

// pastDeadline retry_until是否已过。未设置时不限制。
func pastDeadline(a *model.CloudAction, now time.Time) bool {
	return a.RetryUntil != nil && now.After(*a.RetryUntil)
}
