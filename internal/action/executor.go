package action

import (
	"context"
	"fmt"
	"time"

	"mxops/internal/mendix"
	"mxops/internal/model"
)

// PlatformAPI 编排器对Mendix Deploy API的依赖面
type PlatformAPI interface {
	StartEnvironment(ctx context.Context, appID, envName string) error
	StopEnvironment(ctx context.Context, appID, envName string) error
	GetEnvironment(ctx context.Context, appID, envName string) (*mendix.Environment, error)
	CreatePackage(ctx context.Context, appID, branch, revision, version, description string) (string, error)
	GetPackage(ctx context.Context, appID, packageID string) (*mendix.Package, error)
	TransportPackage(ctx context.Context, appID, envName, packageID string) error
	CreateSnapshot(ctx context.Context, appID, envName, comment string) (string, error)
	GetSnapshot(ctx context.Context, appID, envName, snapshotID string) (*mendix.Snapshot, error)
}

// StepResult 单步执行结果。四种形态：
// 完成（Completed）、推进（NextStep）、停留在原步骤（NextStep==当前步骤）、
// 失败（Err，由调用方按致命性分类）。
type StepResult struct {
	Completed bool
	NextStep  Step
	StepData  map[string]interface{}
	Message   string
	Err       error
}

// 轮询步骤的硬性次数上限（跨多次invocation累计，记在step_data里）。
// 时限算错时仍能封顶最坏情况。
const (
	envPollCap = 100
	jobPollCap = 120
)

// StepExecutor 执行一个动作的当前步骤。
// 快轮询（环境状态，3秒间隔）在一次invocation内循环一个时间片；
// 慢轮询（包构建/transport/备份，30秒级远程任务）每次invocation
// 只查一次并停留在原步骤，由下一轮调度提供间隔。
type StepExecutor struct {
	api PlatformAPI

	// 测试时可调小
	EnvPollInterval time.Duration
	EnvPollSlice    int

	// 快轮询循环期间每次迭代调用，用于续心跳/租约。可为nil。
	Heartbeat func()
}

// NewStepExecutor 创建步骤执行器
func NewStepExecutor(api PlatformAPI) *StepExecutor {
	return &StepExecutor{
		api:             api,
		EnvPollInterval: 3 * time.Second,
		EnvPollSlice:    20,
	}
}

// ExecuteStep 执行动作的当前步骤并返回结果。
// 一次调用只做一个步骤的工作，不向后续步骤推进执行。
func (e *StepExecutor) ExecuteStep(ctx context.Context, a *model.CloudAction) StepResult {
	step, err := currentStep(a)
	if err != nil {
		return StepResult{Err: err}
	}

	switch step {
	case StepCallStart, StepStartEnv:
		return e.callStart(ctx, a, step)
	case StepCallStop, StepStopEnv:
		return e.callStop(ctx, a, step)
	case StepPollStarted:
		return e.pollEnvironment(ctx, a, step, mendix.EnvStatusRunning)
	case StepPollStopped:
		return e.pollEnvironment(ctx, a, step, mendix.EnvStatusStopped)
	case StepCreatePackage:
		return e.createPackage(ctx, a, step)
	case StepPollPackage:
		return e.pollPackage(ctx, a, step)
	case StepTransport:
		return e.transport(ctx, a, step)
	case StepPollTransport:
		return e.pollTransport(ctx, a, step)
	case StepCreateBackup:
		return e.createBackup(ctx, a, step)
	case StepPollBackup:
		return e.pollBackup(ctx, a, step)
	case StepRetrieveSourcePackage:
		return e.retrieveSourcePackage(ctx, a, step)
	default:
		return StepResult{Err: fmt.Errorf("step %s has no executor", step)}
	}
}

// advance 构造推进结果，进入新步骤时轮询计数清零
func (e *StepExecutor) advance(a *model.CloudAction, step Step, message string, carry map[string]interface{}) StepResult {
	next, done, err := successor(a.ActionType, step)
	if err != nil {
		return StepResult{Err: err}
	}
	data := map[string]interface{}{"poll_count": 0}
	for k, v := range a.StepData {
		if k != "poll_count" {
			data[k] = v
		}
	}
	for k, v := range carry {
		data[k] = v
	}
	if done {
		return StepResult{Completed: true, StepData: data, Message: message}
	}
	return StepResult{NextStep: next, StepData: data, Message: message}
}

// stay 停留在原步骤等待下一轮，保留累计轮询计数
func (e *StepExecutor) stay(a *model.CloudAction, step Step, message string, pollCount int) StepResult {
	data := map[string]interface{}{}
	for k, v := range a.StepData {
		data[k] = v
	}
	data["poll_count"] = pollCount
	return StepResult{NextStep: step, StepData: data, Message: message}
}

func (e *StepExecutor) callStart(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	if err := e.api.StartEnvironment(ctx, a.AppID, a.EnvironmentName); err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	return e.advance(a, step, fmt.Sprintf("start requested for environment %s", a.EnvironmentName), nil)
}

func (e *StepExecutor) callStop(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	if err := e.api.StopEnvironment(ctx, a.AppID, a.EnvironmentName); err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	return e.advance(a, step, fmt.Sprintf("stop requested for environment %s", a.EnvironmentName), nil)
}

// pollEnvironment 快轮询：3秒间隔循环查询环境状态，直到达到目标、
// 超出时限/上限，或本invocation的时间片用完。
func (e *StepExecutor) pollEnvironment(ctx context.Context, a *model.CloudAction, step Step, target string) StepResult {
	count := a.StepInt("poll_count")
	for i := 0; i < e.EnvPollSlice; i++ {
		if e.Heartbeat != nil {
			e.Heartbeat()
		}
		if pastDeadline(a, time.Now()) {
			return StepResult{Err: fmt.Errorf("step %s: environment did not reach status %s within timeout", step, target)}
		}
		if count >= envPollCap {
			return StepResult{Err: fmt.Errorf("step %s: poll limit reached before environment became %s", step, target)}
		}

		env, err := e.api.GetEnvironment(ctx, a.AppID, a.EnvironmentName)
		if err != nil {
			return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
		}
		count++

		if env.Status == target {
			return e.advance(a, step, fmt.Sprintf("environment %s is %s", a.EnvironmentName, target), nil)
		}

		select {
		case <-ctx.Done():
			return StepResult{Err: fmt.Errorf("step %s: %w", step, ctx.Err())}
		case <-time.After(e.EnvPollInterval):
		}
	}
	return e.stay(a, step, fmt.Sprintf("environment %s not yet %s, will keep polling", a.EnvironmentName, target), count)
}

func (e *StepExecutor) createPackage(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	branch := a.PayloadString("branch_name")
	revision := a.PayloadString("revision_id")
	if branch == "" || revision == "" {
		return StepResult{Err: fmt.Errorf("step %s: deploy payload requires branch_name and revision_id", step)}
	}
	version := a.PayloadString("version")
	if version == "" {
		version = "1.0.0"
	}
	description := a.PayloadString("description")
	if description == "" {
		description = fmt.Sprintf("mxops deploy action %d", a.ID)
	}

	packageID, err := e.api.CreatePackage(ctx, a.AppID, branch, revision, version, description)
	if err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	return e.advance(a, step, fmt.Sprintf("package build %s started from branch %s revision %s", packageID, branch, revision),
		map[string]interface{}{"package_id": packageID})
}

// pollPackage 慢轮询：每次invocation查一次构建状态
func (e *StepExecutor) pollPackage(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	packageID := a.StepString("package_id")
	if packageID == "" {
		return StepResult{Err: fmt.Errorf("step %s: no package_id carried from create_package", step)}
	}
	if pastDeadline(a, time.Now()) {
		return StepResult{Err: fmt.Errorf("step %s: package %s did not finish building within timeout", step, packageID)}
	}
	count := a.StepInt("poll_count")
	if count >= jobPollCap {
		return StepResult{Err: fmt.Errorf("step %s: poll limit reached while package %s was still building", step, packageID)}
	}

	pkg, err := e.api.GetPackage(ctx, a.AppID, packageID)
	if err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}

	switch {
	case mendix.PackageBuildDone(pkg.Status):
		return e.advance(a, step, fmt.Sprintf("package %s built successfully", packageID), nil)
	case pkg.Status == mendix.PackageStatusFailed:
		return StepResult{Err: fmt.Errorf("step %s: package %s build failed", step, packageID)}
	default:
		return e.stay(a, step, fmt.Sprintf("package %s still building (%s)", packageID, pkg.Status), count+1)
	}
}

func (e *StepExecutor) transport(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	packageID := a.StepString("package_id")
	if packageID == "" {
		packageID = a.PayloadString("package_id")
	}
	if packageID == "" {
		return StepResult{Err: fmt.Errorf("step %s: no package to transport", step)}
	}

	if err := e.api.TransportPackage(ctx, a.AppID, a.EnvironmentName, packageID); err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	return e.advance(a, step, fmt.Sprintf("transport of package %s to %s requested", packageID, a.EnvironmentName),
		map[string]interface{}{"package_id": packageID})
}

// pollTransport transport完成判定：目标环境的当前部署包等于期望包
func (e *StepExecutor) pollTransport(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	packageID := a.StepString("package_id")
	if packageID == "" {
		return StepResult{Err: fmt.Errorf("step %s: no package_id to compare against", step)}
	}
	if pastDeadline(a, time.Now()) {
		return StepResult{Err: fmt.Errorf("step %s: package %s was not deployed to %s within timeout", step, packageID, a.EnvironmentName)}
	}
	count := a.StepInt("poll_count")
	if count >= jobPollCap {
		return StepResult{Err: fmt.Errorf("step %s: poll limit reached while waiting for transport of %s", step, packageID)}
	}

	env, err := e.api.GetEnvironment(ctx, a.AppID, a.EnvironmentName)
	if err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	if env.PackageID == packageID {
		return e.advance(a, step, fmt.Sprintf("package %s is now active on %s", packageID, a.EnvironmentName), nil)
	}
	return e.stay(a, step, fmt.Sprintf("transport of %s to %s still pending", packageID, a.EnvironmentName), count+1)
}

func (e *StepExecutor) createBackup(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	comment := fmt.Sprintf("mxops pre-deploy snapshot, action %d", a.ID)
	snapshotID, err := e.api.CreateSnapshot(ctx, a.AppID, a.EnvironmentName, comment)
	if err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	return e.advance(a, step, fmt.Sprintf("backup %s requested for %s", snapshotID, a.EnvironmentName),
		map[string]interface{}{"backup_id": snapshotID})
}

func (e *StepExecutor) pollBackup(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	snapshotID := a.StepString("backup_id")
	if snapshotID == "" {
		return StepResult{Err: fmt.Errorf("step %s: no backup_id carried from create_backup", step)}
	}
	if pastDeadline(a, time.Now()) {
		return StepResult{Err: fmt.Errorf("step %s: backup %s did not complete within timeout", step, snapshotID)}
	}
	count := a.StepInt("poll_count")
	if count >= jobPollCap {
		return StepResult{Err: fmt.Errorf("step %s: poll limit reached while backup %s was still running", step, snapshotID)}
	}

	snap, err := e.api.GetSnapshot(ctx, a.AppID, a.EnvironmentName, snapshotID)
	if err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}

	switch snap.State {
	case mendix.SnapshotStateCompleted:
		return e.advance(a, step, fmt.Sprintf("backup %s completed", snapshotID), nil)
	case mendix.SnapshotStateFailed:
		return StepResult{Err: fmt.Errorf("step %s: backup %s failed", step, snapshotID)}
	default:
		return e.stay(a, step, fmt.Sprintf("backup %s still %s", snapshotID, snap.State), count+1)
	}
}

// retrieveSourcePackage transport动作的源解析：取源环境当前部署的包
func (e *StepExecutor) retrieveSourcePackage(ctx context.Context, a *model.CloudAction, step Step) StepResult {
	if a.PayloadString("package_id") != "" {
		// 显式指定包时跳过来源查询
		return e.advance(a, step, fmt.Sprintf("using explicit package %s", a.PayloadString("package_id")),
			map[string]interface{}{"package_id": a.PayloadString("package_id")})
	}

	source := a.PayloadString("source_environment")
	if source == "" {
		return StepResult{Err: fmt.Errorf("step %s: transport payload requires source_environment or package_id", step)}
	}

	env, err := e.api.GetEnvironment(ctx, a.AppID, source)
	if err != nil {
		return StepResult{Err: fmt.Errorf("step %s: %w", step, err)}
	}
	if env.PackageID == "" {
		return StepResult{Err: fmt.Errorf("step %s: no package deployed on source environment %s", step, source)}
	}
	return e.advance(a, step, fmt.Sprintf("resolved package %s from source environment %s", env.PackageID, source),
		map[string]interface{}{"package_id": env.PackageID})
}
