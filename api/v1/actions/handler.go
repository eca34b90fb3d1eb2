package actions

import (
	"errors"
	"fmt"
	"time"

	"mxops/internal/action"
	"mxops/internal/httpx"
	"mxops/internal/mendix"
	"mxops/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateRequest represents submit action request
type CreateRequest struct {
	CredentialID    int64                  `json:"credential_id" binding:"required"`
	AppID           string                 `json:"app_id" binding:"required"`
	EnvironmentName string                 `json:"environment_name" binding:"required"`
	ActionType      string                 `json:"action_type" binding:"required"`
	ScheduledFor    *time.Time             `json:"scheduled_for"`
	RetryUntil      *time.Time             `json:"retry_until"`
	Payload         map[string]interface{} `json:"payload"`
}

// ListRequest represents list actions request
type ListRequest struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
	Status     string `form:"status"`
	ActionType string `form:"actionType"`
	AppID      string `form:"appId"`
}

// ListResponse represents list actions response
type ListResponse struct {
	Items    []model.CloudAction `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// RunRequest represents manual trigger request
type RunRequest struct {
	ActionID int64 `json:"actionId"`
}

// Handler handles cloud action API
type Handler struct {
	db     *gorm.DB
	store  *action.Store
	worker *action.Worker
}

// NewHandler creates a new actions handler
func NewHandler(db *gorm.DB, worker *action.Worker) *Handler {
	return &Handler{
		db:     db,
		store:  action.NewStore(db),
		worker: worker,
	}
}

// Create handles POST /api/v1/actions
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	actionType := model.CloudActionType(req.ActionType)
	if _, err := action.InitialStep(actionType); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(fmt.Sprintf("unsupported action_type %q", req.ActionType)))
		return
	}

	if err := validatePayload(actionType, req.Payload); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	// Credential must exist and belong to the caller
	uid := c.GetInt("uid")
	var cred model.MendixCredential
	if err := h.db.Where("id = ? AND user_id = ?", req.CredentialID, uid).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("credential not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}

	now := time.Now()
	scheduledFor := req.ScheduledFor
	if scheduledFor == nil {
		scheduledFor = &now
	}
	retryUntil := req.RetryUntil
	if retryUntil == nil {
		deadline := scheduledFor.Add(action.DefaultRetryWindow(actionType))
		retryUntil = &deadline
	}

	a := model.CloudAction{
		UserID:          uid,
		CredentialID:    req.CredentialID,
		AppID:           req.AppID,
		EnvironmentName: mendix.NormalizeEnvironmentName(req.EnvironmentName),
		ActionType:      actionType,
		Status:          model.CloudActionStatusScheduled,
		ScheduledFor:    scheduledFor,
		RetryUntil:      retryUntil,
		Payload:         datatypes.JSONMap(req.Payload),
	}
	if err := h.db.Create(&a).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create action", err))
		return
	}

	httpx.OK(c, a)
}

// validatePayload 按动作类型校验负载必填字段
func validatePayload(actionType model.CloudActionType, payload map[string]interface{}) error {
	str := func(key string) string {
		if payload == nil {
			return ""
		}
		v, _ := payload[key].(string)
		return v
	}

	switch actionType {
	case model.CloudActionTypeDeploy:
		if str("branch_name") == "" {
			return fmt.Errorf("field 'branch_name' is required for deploy")
		}
		if str("revision_id") == "" {
			return fmt.Errorf("field 'revision_id' is required for deploy")
		}
	case model.CloudActionTypeTransport:
		if str("source_environment") == "" && str("package_id") == "" {
			return fmt.Errorf("transport requires 'source_environment' or 'package_id'")
		}
	}
	return nil
}

// List handles GET /api/v1/actions
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	// Set defaults
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := h.db.Model(&model.CloudAction{}).Where("user_id = ?", c.GetInt("uid"))
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.ActionType != "" {
		query = query.Where("action_type = ?", req.ActionType)
	}
	if req.AppID != "" {
		query = query.Where("app_id = ?", req.AppID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count actions", err))
		return
	}

	var items []model.CloudAction
	if err := query.Order("id DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&items).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list actions", err))
		return
	}

	httpx.OK(c, ListResponse{
		Items:    items,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
}

// Get handles GET /api/v1/actions/:id
func (h *Handler) Get(c *gin.Context) {
	a, ok := h.loadOwned(c)
	if !ok {
		return
	}
	httpx.OK(c, a)
}

// Logs handles GET /api/v1/actions/:id/logs
func (h *Handler) Logs(c *gin.Context) {
	a, ok := h.loadOwned(c)
	if !ok {
		return
	}

	var logs []model.CloudActionLog
	if err := h.db.Where("action_id = ?", a.ID).Order("id ASC").Find(&logs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list action logs", err))
		return
	}
	httpx.OK(c, logs)
}

// Run handles POST /api/v1/actions/run: trigger one processing pass now
// instead of waiting for the worker tick. With actionId it targets a single
// action, otherwise it processes the caller's due actions.
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	filter := action.FetchDueFilter{UserID: c.GetInt("uid")}
	if req.ActionID > 0 {
		filter.IDs = []int64{req.ActionID}
	}

	processed, err := h.worker.RunOnce(c.Request.Context(), filter)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to run actions", err))
		return
	}
	httpx.OK(c, gin.H{"processed": processed})
}

// loadOwned 按路径参数读取动作并校验归属
func (h *Handler) loadOwned(c *gin.Context) (*model.CloudAction, bool) {
	var a model.CloudAction
	err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), c.GetInt("uid")).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("action not found"))
			return nil, false
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return nil, false
	}
	return &a, true
}
