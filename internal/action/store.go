package action

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mxops/internal/model"
)

// Store cloud_actions表的唯一写入方。
// 终态不可变：所有更新都带status守卫，succeeded/failed行不会被改动。
type Store struct {
	db *gorm.DB
}

// NewStore 创建Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FetchDueFilter 可选过滤条件
type FetchDueFilter struct {
	IDs    []int64
	UserID int
}

// FetchDue 查询到期可执行的动作：
// scheduled且到达scheduled_for，或running但心跳过期（worker失联）。
// 已达最大尝试次数的行不再捞取。
func (s *Store) FetchDue(limit int, filter FetchDueFilter) ([]model.CloudAction, error) {
	now := time.Now()
	staleBefore := now.Add(-HeartbeatStaleAfter)

	query := s.db.Model(&model.CloudAction{}).
		Where("attempt_count < ?", MaxAttempts).
		Where(
			s.db.Where("status = ? AND (scheduled_for IS NULL OR scheduled_for <= ?)",
				model.CloudActionStatusScheduled, now).
				Or("status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)",
					model.CloudActionStatusRunning, staleBefore),
		)

	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.UserID > 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}

	var actions []model.CloudAction
	if err := query.Order("id ASC").Limit(limit).Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch due actions: %w", err)
	}
	return actions, nil
}

// Claim 条件更新抢占动作：只有scheduled行或心跳过期的running行
// 能被接管，RowsAffected判断抢占是否成功。
// 成功后租约归属workerID，错误信息清空，started_at首次置位。
func (s *Store) Claim(id int64, workerID string, leaseTTL time.Duration) (bool, error) {
	now := time.Now()
	leaseExpiry := now.Add(leaseTTL)
	staleBefore := now.Add(-HeartbeatStaleAfter)

	result := s.db.Model(&model.CloudAction{}).
		Where("id = ? AND attempt_count < ?", id, MaxAttempts).
		Where("status = ? OR (status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?))",
			model.CloudActionStatusScheduled, model.CloudActionStatusRunning, staleBefore).
		Updates(map[string]interface{}{
			"status":           model.CloudActionStatusRunning,
			"worker_id":        workerID,
			"lease_expires_at": leaseExpiry,
			"last_heartbeat":   now,
			"started_at":       gorm.Expr("COALESCE(started_at, ?)", now),
			"error_message":    "",
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim action %d: %w", id, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Advance 持久化下一步游标与步骤携带数据，并刷新心跳。
// 只对running行生效。
func (s *Store) Advance(id int64, nextStep Step, stepData map[string]interface{}) error {
	updates := map[string]interface{}{
		"current_step":   string(nextStep),
		"last_heartbeat": time.Now(),
	}
	if stepData != nil {
		updates["step_data"] = datatypes.JSONMap(stepData)
	}

	result := s.db.Model(&model.CloudAction{}).
		Where("id = ? AND status = ?", id, model.CloudActionStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to advance action %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("action %d is not running, refusing to advance", id)
	}
	return nil
}

// Heartbeat 刷新心跳与租约
func (s *Store) Heartbeat(id int64, leaseTTL time.Duration) error {
	now := time.Now()
	return s.db.Model(&model.CloudAction{}).
		Where("id = ? AND status = ?", id, model.CloudActionStatusRunning).
		Updates(map[string]interface{}{
			"last_heartbeat":   now,
			"lease_expires_at": now.Add(leaseTTL),
		}).Error
}

// Succeed running -> succeeded
func (s *Store) Succeed(id int64) error {
	now := time.Now()
	result := s.db.Model(&model.CloudAction{}).
		Where("id = ? AND status = ?", id, model.CloudActionStatusRunning).
		Updates(map[string]interface{}{
			"status":       model.CloudActionStatusSucceeded,
			"completed_at": now,
			"current_step": "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark action %d succeeded: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("action %d is not running, refusing to mark succeeded", id)
	}
	return nil
}

// FailOrRetry 记一次步骤级失败。
// attempt_count自增后达到上限、或错误为致命时转为failed；
// 否则重新排队，scheduled_for = now + 新尝试次数*60秒。
// 返回动作是否已终结及新的尝试次数。
func (s *Store) FailOrRetry(a *model.CloudAction, errorMessage string, fatal bool) (failed bool, attempts int, err error) {
	attempts = a.AttemptCount + 1
	if len(errorMessage) > 1024 {
		errorMessage = errorMessage[:1024]
	}

	now := time.Now()
	updates := map[string]interface{}{
		"attempt_count":  attempts,
		"error_message":  errorMessage,
		"last_heartbeat": now,
	}
	if terminalAfterFailure(attempts, fatal) {
		failed = true
		updates["status"] = model.CloudActionStatusFailed
		updates["completed_at"] = now
	} else {
		updates["status"] = model.CloudActionStatusScheduled
		updates["scheduled_for"] = now.Add(retryDelay(attempts))
	}

	result := s.db.Model(&model.CloudAction{}).
		Where("id = ? AND status = ?", a.ID, model.CloudActionStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return false, a.AttemptCount, fmt.Errorf("failed to record failure for action %d: %w", a.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return false, a.AttemptCount, fmt.Errorf("action %d is not running, refusing to record failure", a.ID)
	}
	return failed, attempts, nil
}

// Get 按ID取动作
func (s *Store) Get(id int64) (*model.CloudAction, error) {
	var a model.CloudAction
	if err := s.db.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
