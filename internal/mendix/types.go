package mendix

// Credential 调用平台API所需的凭据
type Credential struct {
	Username string
	APIKey   string
}

// Environment Deploy API环境详情
type Environment struct {
	Status        string `json:"Status"`
	EnvironmentID string `json:"EnvironmentId"`
	Mode          string `json:"Mode"`
	URL           string `json:"Url"`
	// 当前部署的包，用于transport完成判定
	PackageID string `json:"PackageId"`
}

// 环境运行状态取值
const (
	EnvStatusRunning  = "Running"
	EnvStatusStopped  = "Stopped"
	EnvStatusStarting = "Starting"
	EnvStatusStopping = "Stopping"
)

// startRequest POST /environments/{env}/start 请求体
type startRequest struct {
	AutoSyncDb bool `json:"AutoSyncDb"`
}

// createPackageRequest POST /apps/{appId}/packages 请求体
type createPackageRequest struct {
	Branch      string `json:"Branch"`
	Revision    string `json:"Revision"`
	Version     string `json:"Version"`
	Description string `json:"Description"`
}

// Package 部署包
type Package struct {
	PackageID   string `json:"PackageId"`
	Name        string `json:"Name"`
	Status      string `json:"Status"`
	Description string `json:"Description"`
	Version     string `json:"Version"`
	ExpiryDate  int64  `json:"ExpiryDate,omitempty"`
}

// 包构建状态取值。历史上成功状态有过两种拼写。
const (
	PackageStatusBuilding  = "Building"
	PackageStatusSucceeded = "Succeeded"
	PackageStatusAvailable = "Available"
	PackageStatusFailed    = "Failed"
)

// PackageBuildDone 包构建是否成功结束
func PackageBuildDone(status string) bool {
	return status == PackageStatusSucceeded || status == PackageStatusAvailable
}

// transportRequest POST /environments/{env}/transport 请求体
type transportRequest struct {
	PackageID string `json:"PackageId"`
}

// createSnapshotRequest POST .../snapshots 请求体
type createSnapshotRequest struct {
	Comment string `json:"comment"`
}

// Snapshot 环境备份
type Snapshot struct {
	SnapshotID string `json:"snapshot_id"`
	State      string `json:"state"`
	Comment    string `json:"comment"`
}

// 备份状态取值
const (
	SnapshotStateQueued    = "queued"
	SnapshotStateCompleted = "completed"
	SnapshotStateFailed    = "failed"
)
