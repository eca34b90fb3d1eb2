package mendix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL Mendix Deploy API v1地址
const DefaultBaseURL = "https://deploy.mendix.com/api/1"

// Client Mendix Deploy API客户端。
// 单次尝试，不含任何重试策略：重试、退避都由编排器负责。
// 所有环境名在发请求前统一走NormalizeEnvironmentName。
type Client struct {
	httpClient *http.Client
	baseURL    string
	cred       Credential
}

// NewClient 创建平台客户端
func NewClient(baseURL string, cred Credential, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		cred:       cred,
	}
}

// StartEnvironment 启动环境（异步，需轮询GetEnvironment确认）
func (c *Client) StartEnvironment(ctx context.Context, appID, envName string) error {
	path := fmt.Sprintf("/apps/%s/environments/%s/start",
		url.PathEscape(appID), url.PathEscape(NormalizeEnvironmentName(envName)))
	return c.do(ctx, "start environment", http.MethodPost, path, startRequest{AutoSyncDb: true}, nil)
}

// StopEnvironment 停止环境（异步）
func (c *Client) StopEnvironment(ctx context.Context, appID, envName string) error {
	path := fmt.Sprintf("/apps/%s/environments/%s/stop",
		url.PathEscape(appID), url.PathEscape(NormalizeEnvironmentName(envName)))
	return c.do(ctx, "stop environment", http.MethodPost, path, struct{}{}, nil)
}

// GetEnvironment 查询环境状态与当前部署包
func (c *Client) GetEnvironment(ctx context.Context, appID, envName string) (*Environment, error) {
	path := fmt.Sprintf("/apps/%s/environments/%s",
		url.PathEscape(appID), url.PathEscape(NormalizeEnvironmentName(envName)))
	var env Environment
	if err := c.do(ctx, "get environment", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// CreatePackage 从分支/修订创建部署包（异步远程构建）
func (c *Client) CreatePackage(ctx context.Context, appID, branch, revision, version, description string) (string, error) {
	path := fmt.Sprintf("/apps/%s/packages", url.PathEscape(appID))
	req := createPackageRequest{
		Branch:      branch,
		Revision:    revision,
		Version:     version,
		Description: description,
	}
	var pkg Package
	if err := c.do(ctx, "create package", http.MethodPost, path, req, &pkg); err != nil {
		return "", err
	}
	if pkg.PackageID == "" {
		return "", fmt.Errorf("create package: response contained no PackageId")
	}
	return pkg.PackageID, nil
}

// GetPackage 查询包构建状态
func (c *Client) GetPackage(ctx context.Context, appID, packageID string) (*Package, error) {
	path := fmt.Sprintf("/apps/%s/packages/%s", url.PathEscape(appID), url.PathEscape(packageID))
	var pkg Package
	if err := c.do(ctx, "get package", http.MethodGet, path, nil, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ListPackages 列出应用的部署包
func (c *Client) ListPackages(ctx context.Context, appID string) ([]Package, error) {
	path := fmt.Sprintf("/apps/%s/packages", url.PathEscape(appID))
	var pkgs []Package
	if err := c.do(ctx, "list packages", http.MethodGet, path, nil, &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// TransportPackage 把包传输到目标环境（异步，完成判定靠
// 轮询目标环境的PackageId是否变为该包）
func (c *Client) TransportPackage(ctx context.Context, appID, envName, packageID string) error {
	path := fmt.Sprintf("/apps/%s/environments/%s/transport",
		url.PathEscape(appID), url.PathEscape(NormalizeEnvironmentName(envName)))
	return c.do(ctx, "transport package", http.MethodPost, path, transportRequest{PackageID: packageID}, nil)
}

// CreateSnapshot 创建环境备份（异步）
func (c *Client) CreateSnapshot(ctx context.Context, appID, envName, comment string) (string, error) {
	path := fmt.Sprintf("/apps/%s/environments/%s/snapshots",
		url.PathEscape(appID), url.PathEscape(NormalizeEnvironmentName(envName)))
	var snap Snapshot
	if err := c.do(ctx, "create snapshot", http.MethodPost, path, createSnapshotRequest{Comment: comment}, &snap); err != nil {
		return "", err
	}
	if snap.SnapshotID == "" {
		return "", fmt.Errorf("create snapshot: response contained no snapshot_id")
	}
	return snap.SnapshotID, nil
}

// GetSnapshot 查询备份状态
func (c *Client) GetSnapshot(ctx context.Context, appID, envName, snapshotID string) (*Snapshot, error) {
	path := fmt.Sprintf("/apps/%s/environments/%s/snapshots/%s",
		url.PathEscape(appID), url.PathEscape(NormalizeEnvironmentName(envName)), url.PathEscape(snapshotID))
	var snap Snapshot
	if err := c.do(ctx, "get snapshot", http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// do 发送一次请求，非2xx返回*APIError
func (c *Client) do(ctx context.Context, operation, method, path string, reqBody, respBody interface{}) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", operation, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", operation, err)
	}
	httpReq.Header.Set("Mendix-Username", c.cred.Username)
	httpReq.Header.Set("Mendix-ApiKey", c.cred.APIKey)
	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", operation, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", operation, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return newAPIError(operation, httpResp.StatusCode, data)
	}

	if respBody != nil && len(data) > 0 {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("%s: failed to parse response: %w", operation, err)
		}
	}
	return nil
}
