package actions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// createRequest 走一次Create，不依赖数据库：所有用例都应在校验阶段被拒绝
func createRequest(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHandler(nil, nil)
	r := gin.New()
	r.POST("/actions", h.Create)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func assertParamError(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp.Code == 0 {
		t.Errorf("Expected non-zero error code, got %d", resp.Code)
	}
}

func TestCreate_MissingRequiredFields(t *testing.T) {
	w := createRequest(t, `{"app_id": "app-1"}`)
	assertParamError(t, w)
}

func TestCreate_UnsupportedActionType(t *testing.T) {
	w := createRequest(t, `{
		"credential_id": 1,
		"app_id": "app-1",
		"environment_name": "production",
		"action_type": "reboot"
	}`)
	assertParamError(t, w)
}

func TestCreate_DeployRequiresBranchAndRevision(t *testing.T) {
	w := createRequest(t, `{
		"credential_id": 1,
		"app_id": "app-1",
		"environment_name": "acceptance",
		"action_type": "deploy",
		"payload": {"branch_name": "trunk"}
	}`)
	assertParamError(t, w)
}

func TestCreate_TransportRequiresSource(t *testing.T) {
	w := createRequest(t, `{
		"credential_id": 1,
		"app_id": "app-1",
		"environment_name": "production",
		"action_type": "transport",
		"payload": {}
	}`)
	assertParamError(t, w)
}

func TestValidatePayload_TransportAcceptsEither(t *testing.T) {
	if err := validatePayload("transport", map[string]interface{}{"source_environment": "Acceptance"}); err != nil {
		t.Errorf("source_environment should satisfy transport: %v", err)
	}
	if err := validatePayload("transport", map[string]interface{}{"package_id": "pkg-1"}); err != nil {
		t.Errorf("package_id should satisfy transport: %v", err)
	}
}

func TestValidatePayload_StartHasNoRequiredFields(t *testing.T) {
	if err := validatePayload("start", nil); err != nil {
		t.Errorf("start should not require payload: %v", err)
	}
}
