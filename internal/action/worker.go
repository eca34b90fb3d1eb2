package action

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"mxops/internal/cache"
	"mxops/internal/mendix"
	"mxops/internal/model"
	"mxops/internal/notify"
)

// ClientFactory 按动作凭据构造平台客户端
type ClientFactory func(cred *model.MendixCredential) PlatformAPI

// Worker 编排循环：捞取到期动作，逐个认领并执行恰好一个步骤，
// 然后落库推进/终结/重试。单个invocation串行处理一个有界批次，
// 整体受墙钟预算约束，动作间互不影响。
type Worker struct {
	db       *gorm.DB
	store    *Store
	logs     *LogSink
	locks    *cache.EnvLock
	notifier notify.Notifier
	logger   *logrus.Entry
	factory  ClientFactory

	workerID  string
	interval  time.Duration
	batchSize int
	budget    time.Duration
	leaseTTL  time.Duration
}

// WorkerConfig Worker配置
type WorkerConfig struct {
	DB            *gorm.DB
	Locks         *cache.EnvLock
	Notifier      notify.Notifier
	Logger        *logrus.Entry
	ClientFactory ClientFactory
	IntervalSec   int
	BatchSize     int
	BudgetSec     int
	LeaseTTLSec   int
}

// NewWorker 创建编排Worker
func NewWorker(cfg *WorkerConfig) *Worker {
	logger := cfg.Logger.WithField("component", "action-worker")
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	budget := time.Duration(cfg.BudgetSec) * time.Second
	if budget <= 0 {
		budget = 90 * time.Second
	}
	leaseTTL := time.Duration(cfg.LeaseTTLSec) * time.Second
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	return &Worker{
		db:        cfg.DB,
		store:     NewStore(cfg.DB),
		logs:      NewLogSink(cfg.DB, logger),
		locks:     cfg.Locks,
		notifier:  notifier,
		logger:    logger,
		factory:   cfg.ClientFactory,
		workerID:  uuid.NewString(),
		interval:  time.Duration(cfg.IntervalSec) * time.Second,
		batchSize: batchSize,
		budget:    budget,
		leaseTTL:  leaseTTL,
	}
}

// RunOnce 执行一次处理批次。filter可限定具体动作或用户。
// 返回实际处理的动作数。
func (w *Worker) RunOnce(ctx context.Context, filter FetchDueFilter) (int, error) {
	started := time.Now()

	actions, err := w.store.FetchDue(w.batchSize, filter)
	if err != nil {
		w.logger.Errorf("Failed to fetch due actions: %v", err)
		return 0, err
	}
	if len(actions) == 0 {
		return 0, nil
	}

	w.logger.Infof("Found %d due actions", len(actions))

	processed := 0
	for i := range actions {
		if time.Since(started) > w.budget {
			w.logger.Warnf("Invocation budget exceeded, leaving %d actions for next tick", len(actions)-i)
			break
		}
		// 单个动作的失败不中断批次
		w.processAction(ctx, &actions[i])
		processed++
	}
	return processed, nil
}

// RunLoop 周期执行直到ctx取消
func (w *Worker) RunLoop(ctx context.Context) {
	w.logger.Infof("Starting action worker loop (interval=%v, worker=%s)", w.interval, w.workerID)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if _, err := w.RunOnce(ctx, FetchDueFilter{}); err != nil {
		w.logger.Errorf("Initial run failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Action worker loop stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx, FetchDueFilter{}); err != nil {
				w.logger.Errorf("Run failed: %v", err)
			}
		}
	}
}

// processAction 认领并执行一个动作的当前步骤
func (w *Worker) processAction(ctx context.Context, a *model.CloudAction) {
	// 环境锁：同一(app, environment)上的动作不并行
	token, acquired, err := w.locks.Acquire(ctx, a.AppID, mendix.NormalizeEnvironmentName(a.EnvironmentName))
	if err != nil {
		w.logger.Errorf("Env lock error for action %d: %v", a.ID, err)
		return
	}
	if !acquired {
		w.logger.Infof("Environment %s/%s busy, skipping action %d", a.AppID, a.EnvironmentName, a.ID)
		return
	}
	defer func() {
		if err := w.locks.Release(context.Background(), a.AppID, mendix.NormalizeEnvironmentName(a.EnvironmentName), token); err != nil {
			w.logger.Errorf("Failed to release env lock for action %d: %v", a.ID, err)
		}
	}()

	claimed, err := w.store.Claim(a.ID, w.workerID, w.leaseTTL)
	if err != nil {
		w.logger.Errorf("Failed to claim action %d: %v", a.ID, err)
		return
	}
	if !claimed {
		// 已被其他worker抢占
		w.logger.Infof("Action %d already taken by another worker", a.ID)
		return
	}
	a.Status = model.CloudActionStatusRunning

	step, err := currentStep(a)
	if err != nil {
		w.recordFailure(ctx, a, err)
		return
	}
	w.logs.Info(a.ID, fmt.Sprintf("executing step %s for %s on %s (attempt %d)",
		step, a.ActionType, a.EnvironmentName, a.AttemptCount+1))

	executor, err := w.executorFor(a)
	if err != nil {
		w.recordFailure(ctx, a, err)
		return
	}

	result := executor.ExecuteStep(ctx, a)
	switch {
	case result.Err != nil:
		w.recordFailure(ctx, a, result.Err)
	case result.Completed:
		if err := w.store.Succeed(a.ID); err != nil {
			w.logger.Errorf("Failed to finalize action %d: %v", a.ID, err)
			return
		}
		if result.Message != "" {
			w.logs.Info(a.ID, result.Message)
		}
		w.logs.Info(a.ID, fmt.Sprintf("%s completed successfully", a.ActionType))
		w.notifyTerminal(ctx, a.ID)
	default:
		if err := w.store.Advance(a.ID, result.NextStep, result.StepData); err != nil {
			w.logger.Errorf("Failed to advance action %d: %v", a.ID, err)
			return
		}
		// 不在同一invocation里继续跑下一步，留给下一轮调度
		w.logs.Info(a.ID, result.Message)
	}
}

// executorFor 解析凭据并构造该动作的步骤执行器
func (w *Worker) executorFor(a *model.CloudAction) (*StepExecutor, error) {
	var cred model.MendixCredential
	if err := w.db.First(&cred, a.CredentialID).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve credential %d: %w", a.CredentialID, err)
	}
	executor := NewStepExecutor(w.factory(&cred))
	// 快轮询可能超过45秒心跳窗口，循环内续租
	executor.Heartbeat = func() {
		if err := w.store.Heartbeat(a.ID, w.leaseTTL); err != nil {
			w.logger.Warnf("Failed to refresh heartbeat for action %d: %v", a.ID, err)
		}
	}
	return executor, nil
}

// recordFailure 按致命性分类并落库，终结时发通知
func (w *Worker) recordFailure(ctx context.Context, a *model.CloudAction, stepErr error) {
	fatal := mendix.IsFatal(stepErr)
	failed, attempts, err := w.store.FailOrRetry(a, stepErr.Error(), fatal)
	if err != nil {
		w.logger.Errorf("Failed to record failure for action %d: %v", a.ID, err)
		return
	}

	if failed {
		reason := "retries exhausted"
		if fatal {
			reason = "fatal error"
		}
		w.logs.Error(a.ID, fmt.Sprintf("%s failed (%s, attempt %d): %v", a.ActionType, reason, attempts, stepErr))
		w.notifyTerminal(ctx, a.ID)
		return
	}
	w.logs.Warning(a.ID, fmt.Sprintf("step failed (attempt %d/%d), will retry in %v: %v",
		attempts, MaxAttempts, retryDelay(attempts), stepErr))
}

// notifyTerminal 读取终态行并投递通知
func (w *Worker) notifyTerminal(ctx context.Context, actionID int64) {
	a, err := w.store.Get(actionID)
	if err != nil {
		w.logger.Errorf("Failed to load action %d for notification: %v", actionID, err)
		return
	}
	w.notifier.Notify(ctx, notify.Event{
		ActionID:        a.ID,
		ActionType:      string(a.ActionType),
		AppID:           a.AppID,
		EnvironmentName: a.EnvironmentName,
		Status:          string(a.Status),
		StartedAt:       a.StartedAt,
		CompletedAt:     a.CompletedAt,
		AttemptCount:    a.AttemptCount,
		ErrorMessage:    a.ErrorMessage,
	})
}
