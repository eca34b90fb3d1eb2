package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/datatypes"

	"mxops/internal/mendix"
	"mxops/internal/model"
)

// stubAPI 脚本化的平台桩：每类查询按队列顺序吐结果
type stubAPI struct {
	envQueue      []mendix.Environment
	packageQueue  []string
	snapshotQueue []string

	startErr  error
	stopErr   error
	createErr error

	startCalls     int
	stopCalls      int
	transportCalls int
	snapshotCalls  int
}

func (s *stubAPI) StartEnvironment(ctx context.Context, appID, envName string) error {
	s.startCalls++
	return s.startErr
}

func (s *stubAPI) StopEnvironment(ctx context.Context, appID, envName string) error {
	s.stopCalls++
	return s.stopErr
}

func (s *stubAPI) GetEnvironment(ctx context.Context, appID, envName string) (*mendix.Environment, error) {
	if len(s.envQueue) == 0 {
		return nil, errors.New("stub: env queue exhausted")
	}
	env := s.envQueue[0]
	s.envQueue = s.envQueue[1:]
	return &env, nil
}

func (s *stubAPI) CreatePackage(ctx context.Context, appID, branch, revision, version, description string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	return "pkg-1", nil
}

func (s *stubAPI) GetPackage(ctx context.Context, appID, packageID string) (*mendix.Package, error) {
	if len(s.packageQueue) == 0 {
		return nil, errors.New("stub: package queue exhausted")
	}
	status := s.packageQueue[0]
	s.packageQueue = s.packageQueue[1:]
	return &mendix.Package{PackageID: packageID, Status: status}, nil
}

func (s *stubAPI) TransportPackage(ctx context.Context, appID, envName, packageID string) error {
	s.transportCalls++
	return nil
}

func (s *stubAPI) CreateSnapshot(ctx context.Context, appID, envName, comment string) (string, error) {
	s.snapshotCalls++
	return "snap-1", nil
}

func (s *stubAPI) GetSnapshot(ctx context.Context, appID, envName, snapshotID string) (*mendix.Snapshot, error) {
	if len(s.snapshotQueue) == 0 {
		return nil, errors.New("stub: snapshot queue exhausted")
	}
	state := s.snapshotQueue[0]
	s.snapshotQueue = s.snapshotQueue[1:]
	return &mendix.Snapshot{SnapshotID: snapshotID, State: state}, nil
}

func fastExecutor(api PlatformAPI) *StepExecutor {
	e := NewStepExecutor(api)
	e.EnvPollInterval = time.Millisecond
	return e
}

// apply 模拟编排器对StepResult的落库动作（内存版）
func apply(t *testing.T, a *model.CloudAction, res StepResult) (done bool) {
	t.Helper()
	if res.Err != nil {
		t.Fatalf("step %s failed: %v", a.CurrentStep, res.Err)
	}
	if res.Completed {
		return true
	}
	a.CurrentStep = string(res.NextStep)
	a.StepData = datatypes.JSONMap(res.StepData)
	return false
}

// drive 反复执行直到完成，返回按首次执行顺序去重的步骤序列
func drive(t *testing.T, e *StepExecutor, a *model.CloudAction, maxInvocations int) []Step {
	t.Helper()
	var visited []Step
	for i := 0; i < maxInvocations; i++ {
		step, err := currentStep(a)
		if err != nil {
			t.Fatalf("currentStep failed: %v", err)
		}
		if len(visited) == 0 || visited[len(visited)-1] != step {
			visited = append(visited, step)
		}
		if apply(t, a, e.ExecuteStep(context.Background(), a)) {
			return visited
		}
	}
	t.Fatalf("action did not complete within %d invocations (cursor=%s)", maxInvocations, a.CurrentStep)
	return nil
}

func TestExecuteStep_StartHappyPath(t *testing.T) {
	api := &stubAPI{
		envQueue: []mendix.Environment{
			{Status: mendix.EnvStatusStarting},
			{Status: mendix.EnvStatusRunning},
		},
	}
	a := &model.CloudAction{
		ID:              1,
		AppID:           "app-1",
		EnvironmentName: "Test",
		ActionType:      model.CloudActionTypeStart,
	}

	visited := drive(t, fastExecutor(api), a, 5)

	if api.startCalls != 1 {
		t.Errorf("expected exactly one start call, got %d", api.startCalls)
	}
	want := []Step{StepCallStart, StepPollStarted}
	if fmt.Sprint(visited) != fmt.Sprint(want) {
		t.Errorf("visited %v, want %v", visited, want)
	}
}

func TestExecuteStep_StopCompletesWithoutPolling(t *testing.T) {
	api := &stubAPI{}
	a := &model.CloudAction{ID: 2, AppID: "app-1", EnvironmentName: "Test", ActionType: model.CloudActionTypeStop}

	res := fastExecutor(api).ExecuteStep(context.Background(), a)
	if res.Err != nil {
		t.Fatalf("stop failed: %v", res.Err)
	}
	if !res.Completed {
		t.Error("stop should complete after the single API call")
	}
	if api.stopCalls != 1 {
		t.Errorf("expected one stop call, got %d", api.stopCalls)
	}
}

func TestExecuteStep_RestartChain(t *testing.T) {
	api := &stubAPI{
		envQueue: []mendix.Environment{
			{Status: mendix.EnvStatusStopping},
			{Status: mendix.EnvStatusStopped},
			{Status: mendix.EnvStatusRunning},
		},
	}
	a := &model.CloudAction{ID: 3, AppID: "app-1", EnvironmentName: "Acceptance", ActionType: model.CloudActionTypeRestart}

	visited := drive(t, fastExecutor(api), a, 8)

	want := []Step{StepCallStop, StepPollStopped, StepCallStart, StepPollStarted}
	if fmt.Sprint(visited) != fmt.Sprint(want) {
		t.Errorf("visited %v, want %v", visited, want)
	}
	if api.stopCalls != 1 || api.startCalls != 1 {
		t.Errorf("expected one stop and one start, got %d/%d", api.stopCalls, api.startCalls)
	}
}

func TestExecuteStep_DeployFullChain(t *testing.T) {
	api := &stubAPI{
		packageQueue:  []string{mendix.PackageStatusBuilding, mendix.PackageStatusSucceeded},
		snapshotQueue: []string{mendix.SnapshotStateQueued, mendix.SnapshotStateCompleted},
		envQueue: []mendix.Environment{
			{PackageID: "pkg-old"},                // poll_transport: 尚未生效
			{PackageID: "pkg-1"},                  // poll_transport: 已生效
			{Status: mendix.EnvStatusRunning},     // poll_stopped: 还在跑
			{Status: mendix.EnvStatusStopped},     // poll_stopped: 停止
			{Status: mendix.EnvStatusStarting},    // poll_started
			{Status: mendix.EnvStatusRunning},     // poll_started: 完成
		},
	}
	a := &model.CloudAction{
		ID:              4,
		AppID:           "app-1",
		EnvironmentName: "Production",
		ActionType:      model.CloudActionTypeDeploy,
		Payload: datatypes.JSONMap{
			"branch_name": "main",
			"revision_id": "42",
		},
	}

	visited := drive(t, fastExecutor(api), a, 20)

	if fmt.Sprint(visited) != fmt.Sprint(StepChain(model.CloudActionTypeDeploy)) {
		t.Errorf("visited %v, want full deploy chain", visited)
	}
	if api.transportCalls != 1 || api.snapshotCalls != 1 {
		t.Errorf("expected one transport and one snapshot, got %d/%d", api.transportCalls, api.snapshotCalls)
	}
	if a.StepString("package_id") != "pkg-1" {
		t.Errorf("package_id should be carried through, got %q", a.StepString("package_id"))
	}
	if a.StepString("backup_id") != "snap-1" {
		t.Errorf("backup_id should be carried through, got %q", a.StepString("backup_id"))
	}
}

func TestExecuteStep_TransportResolvesSourcePackage(t *testing.T) {
	api := &stubAPI{
		envQueue: []mendix.Environment{
			{PackageID: "pkg-9"}, // 源环境当前部署的包
			{PackageID: "pkg-9"}, // 目标环境轮询：已匹配
		},
	}
	a := &model.CloudAction{
		ID:              5,
		AppID:           "app-1",
		EnvironmentName: "Production",
		ActionType:      model.CloudActionTypeTransport,
		Payload:         datatypes.JSONMap{"source_environment": "Acceptance"},
	}

	visited := drive(t, fastExecutor(api), a, 6)

	want := []Step{StepRetrieveSourcePackage, StepTransport, StepPollTransport}
	if fmt.Sprint(visited) != fmt.Sprint(want) {
		t.Errorf("visited %v, want %v", visited, want)
	}
	if a.StepString("package_id") != "pkg-9" {
		t.Errorf("resolved package = %q, want pkg-9", a.StepString("package_id"))
	}
}

func TestExecuteStep_TransportRequiresSource(t *testing.T) {
	a := &model.CloudAction{ID: 6, AppID: "app-1", EnvironmentName: "Test", ActionType: model.CloudActionTypeTransport}
	res := fastExecutor(&stubAPI{}).ExecuteStep(context.Background(), a)
	if res.Err == nil {
		t.Fatal("transport without source_environment or package_id must fail")
	}
}

func TestExecuteStep_DeterministicReplay(t *testing.T) {
	// 同一(action, step)状态重放产生相同的推进结果
	mkAction := func() *model.CloudAction {
		return &model.CloudAction{
			ID:              7,
			AppID:           "app-1",
			EnvironmentName: "Test",
			ActionType:      model.CloudActionTypeDeploy,
			CurrentStep:     string(StepPollPackage),
			StepData:        datatypes.JSONMap{"package_id": "pkg-1", "poll_count": float64(3)},
		}
	}

	first := fastExecutor(&stubAPI{packageQueue: []string{mendix.PackageStatusSucceeded}}).
		ExecuteStep(context.Background(), mkAction())
	second := fastExecutor(&stubAPI{packageQueue: []string{mendix.PackageStatusSucceeded}}).
		ExecuteStep(context.Background(), mkAction())

	if first.NextStep != second.NextStep {
		t.Errorf("replay diverged: %s vs %s", first.NextStep, second.NextStep)
	}
	if fmt.Sprint(first.StepData) != fmt.Sprint(second.StepData) {
		t.Errorf("replay step data diverged: %v vs %v", first.StepData, second.StepData)
	}
}

func TestExecuteStep_SlowPollStaysAndCounts(t *testing.T) {
	api := &stubAPI{packageQueue: []string{mendix.PackageStatusBuilding}}
	a := &model.CloudAction{
		ID:              8,
		AppID:           "app-1",
		EnvironmentName: "Test",
		ActionType:      model.CloudActionTypeDeploy,
		CurrentStep:     string(StepPollPackage),
		StepData:        datatypes.JSONMap{"package_id": "pkg-1", "poll_count": float64(4)},
	}

	res := fastExecutor(api).ExecuteStep(context.Background(), a)
	if res.Err != nil || res.Completed {
		t.Fatalf("building package should keep the action on the step, got %+v", res)
	}
	if res.NextStep != StepPollPackage {
		t.Errorf("expected to stay on poll_package, got %s", res.NextStep)
	}
	if res.StepData["poll_count"] != 5 {
		t.Errorf("poll_count should increment to 5, got %v", res.StepData["poll_count"])
	}
	if res.StepData["package_id"] != "pkg-1" {
		t.Errorf("carried package_id lost: %v", res.StepData)
	}
}

func TestExecuteStep_PollCapExceeded(t *testing.T) {
	a := &model.CloudAction{
		ID:              9,
		AppID:           "app-1",
		EnvironmentName: "Test",
		ActionType:      model.CloudActionTypeStart,
		CurrentStep:     string(StepPollStarted),
		StepData:        datatypes.JSONMap{"poll_count": float64(envPollCap)},
	}

	res := fastExecutor(&stubAPI{}).ExecuteStep(context.Background(), a)
	if res.Err == nil {
		t.Fatal("exceeding the poll cap must fail the step")
	}
	if !strings.Contains(res.Err.Error(), "poll limit") {
		t.Errorf("unexpected error: %v", res.Err)
	}
}

func TestExecuteStep_DeadlineExceeded(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	a := &model.CloudAction{
		ID:              10,
		AppID:           "app-1",
		EnvironmentName: "Test",
		ActionType:      model.CloudActionTypeStart,
		CurrentStep:     string(StepPollStarted),
		RetryUntil:      &past,
	}

	res := fastExecutor(&stubAPI{}).ExecuteStep(context.Background(), a)
	if res.Err == nil {
		t.Fatal("expired retry_until must fail the step")
	}
	if !strings.Contains(res.Err.Error(), "within timeout") {
		t.Errorf("unexpected error: %v", res.Err)
	}
}

func TestExecuteStep_PlatformErrorPropagates(t *testing.T) {
	api := &stubAPI{startErr: errors.New("FATAL: app not found")}
	a := &model.CloudAction{ID: 11, AppID: "gone", EnvironmentName: "Test", ActionType: model.CloudActionTypeStart}

	res := fastExecutor(api).ExecuteStep(context.Background(), a)
	if res.Err == nil {
		t.Fatal("platform error must surface as a step error")
	}
	if !mendix.IsFatal(res.Err) {
		t.Error("fatal platform error must stay classifiable after wrapping")
	}
}
