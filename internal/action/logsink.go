package action

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mxops/internal/model"
)

// LogSink cloud_action_logs的追加写入口，同时镜像到logrus。
// 日志行只增不改；清理归档是外部关注点。
type LogSink struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// NewLogSink 创建LogSink
func NewLogSink(db *gorm.DB, logger *logrus.Entry) *LogSink {
	return &LogSink{db: db, logger: logger}
}

// Info 记录info级日志
func (s *LogSink) Info(actionID int64, message string) {
	s.append(actionID, model.CloudActionLogLevelInfo, message)
}

// Warning 记录warning级日志
func (s *LogSink) Warning(actionID int64, message string) {
	s.append(actionID, model.CloudActionLogLevelWarning, message)
}

// Error 记录error级日志
func (s *LogSink) Error(actionID int64, message string) {
	s.append(actionID, model.CloudActionLogLevelError, message)
}

func (s *LogSink) append(actionID int64, level model.CloudActionLogLevel, message string) {
	if len(message) > 1024 {
		message = message[:1024]
	}
	entry := model.CloudActionLog{
		ActionID: actionID,
		Level:    level,
		Message:  message,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		s.logger.Errorf("Failed to append log for action %d: %v", actionID, err)
	}

	fields := s.logger.WithField("action_id", actionID)
	switch level {
	case model.CloudActionLogLevelError:
		fields.Error(message)
	case model.CloudActionLogLevelWarning:
		fields.Warning(message)
	default:
		fields.Info(message)
	}
}
