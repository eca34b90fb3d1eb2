package model

import "time"

// CloudActionLogLevel 日志级别
type CloudActionLogLevel string

const (
	CloudActionLogLevelInfo    CloudActionLogLevel = "info"
	CloudActionLogLevelWarning CloudActionLogLevel = "warning"
	CloudActionLogLevelError   CloudActionLogLevel = "error"
)

// CloudActionLog 操作执行日志（仅追加，UI侧只读）
type CloudActionLog struct {
	ID        int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	ActionID  int64               `gorm:"not null;index" json:"action_id"`
	Level     CloudActionLogLevel `gorm:"type:enum('info','warning','error');not null;default:info" json:"level"`
	Message   string              `gorm:"type:varchar(1024);not null" json:"message"`
	CreatedAt time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (CloudActionLog) TableName() string {
	return "cloud_action_logs"
}
