package model

import (
	"time"

	"gorm.io/datatypes"
)

// CloudActionType 云操作类型
type CloudActionType string

const (
	CloudActionTypeStart     CloudActionType = "start"
	CloudActionTypeStop      CloudActionType = "stop"
	CloudActionTypeRestart   CloudActionType = "restart"
	CloudActionTypeDeploy    CloudActionType = "deploy"
	CloudActionTypeTransport CloudActionType = "transport"
)

// CloudActionStatus 云操作生命周期状态
type CloudActionStatus string

const (
	CloudActionStatusScheduled CloudActionStatus = "scheduled"
	CloudActionStatusRunning   CloudActionStatus = "running"
	CloudActionStatusSucceeded CloudActionStatus = "succeeded"
	CloudActionStatusFailed    CloudActionStatus = "failed"
)

// CloudAction 一次用户请求的环境生命周期操作
//
// Status只允许如下转移：
//
//	scheduled -> running -> {succeeded, failed}
//	running   -> scheduled （可重试失败后重新排队）
//
// 终态行是不可变的：所有更新语句都在WHERE里带status守卫。
type CloudAction struct {
	ID              int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int               `gorm:"not null;index" json:"user_id"`
	CredentialID    int64             `gorm:"not null;index" json:"credential_id"`
	AppID           string            `gorm:"type:varchar(128);not null;index" json:"app_id"`
	EnvironmentName string            `gorm:"type:varchar(128);not null" json:"environment_name"`
	ActionType      CloudActionType   `gorm:"type:enum('start','stop','restart','deploy','transport');not null" json:"action_type"`
	Status          CloudActionStatus `gorm:"type:enum('scheduled','running','succeeded','failed');not null;default:scheduled;index" json:"status"`

	// 调度字段
	ScheduledFor *time.Time `gorm:"index" json:"scheduled_for,omitempty"`
	RetryUntil   *time.Time `json:"retry_until,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	// 步骤游标：空串表示使用该类型的初始步骤
	CurrentStep string            `gorm:"type:varchar(64)" json:"current_step,omitempty"`
	StepData    datatypes.JSONMap `gorm:"type:json" json:"step_data,omitempty"`

	// 重试与租约
	AttemptCount   int        `gorm:"not null;default:0" json:"attempt_count"`
	LastHeartbeat  *time.Time `gorm:"index" json:"last_heartbeat,omitempty"`
	WorkerID       string     `gorm:"type:varchar(64);default:''" json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	ErrorMessage   string     `gorm:"type:varchar(1024)" json:"error_message,omitempty"`

	// 类型相关负载：deploy为{branch_name,revision_id,version,description}
	// transport为{source_environment}或{package_id}
	Payload datatypes.JSONMap `gorm:"type:json" json:"payload,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (CloudAction) TableName() string {
	return "cloud_actions"
}

// Terminal reports whether the action reached a final state.
func (a *CloudAction) Terminal() bool {
	return a.Status == CloudActionStatusSucceeded || a.Status == CloudActionStatusFailed
}

// PayloadString 从payload取字符串字段，缺失返回空串
func (a *CloudAction) PayloadString(key string) string {
	if a.Payload == nil {
		return ""
	}
	if v, ok := a.Payload[key].(string); ok {
		return v
	}
	return ""
}

// StepString 从step_data取字符串字段，缺失返回空串
func (a *CloudAction) StepString(key string) string {
	if a.StepData == nil {
		return ""
	}
	if v, ok := a.StepData[key].(string); ok {
		return v
	}
	return ""
}

// StepInt 从step_data取整数字段（JSON数字解出来是float64）
func (a *CloudAction) StepInt(key string) int {
	if a.StepData == nil {
		return 0
	}
	switch v := a.StepData[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
