package credentials

import (
	"mxops/internal/httpx"
	"mxops/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateRequest represents create credential request
type CreateRequest struct {
	Name     string `json:"name" binding:"required"`
	Username string `json:"username" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
	PAT      string `json:"pat"`
}

// DeleteRequest represents delete credential request
type DeleteRequest struct {
	ID int64 `json:"id" binding:"required"`
}

// Handler handles Mendix credential API
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new credentials handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Create handles POST /api/v1/credentials
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	cred := model.MendixCredential{
		UserID:   c.GetInt("uid"),
		Name:     req.Name,
		Username: req.Username,
		APIKey:   req.APIKey,
		PAT:      req.PAT,
	}
	if err := h.db.Create(&cred).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create credential", err))
		return
	}
	httpx.OK(c, cred)
}

// List handles GET /api/v1/credentials
func (h *Handler) List(c *gin.Context) {
	var creds []model.MendixCredential
	if err := h.db.Where("user_id = ?", c.GetInt("uid")).Order("id ASC").Find(&creds).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list credentials", err))
		return
	}
	httpx.OK(c, creds)
}

// Delete handles POST /api/v1/credentials/delete
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	// Refuse while pending actions still reference the credential
	var pending int64
	err := h.db.Model(&model.CloudAction{}).
		Where("credential_id = ? AND status IN ?", req.ID,
			[]model.CloudActionStatus{model.CloudActionStatusScheduled, model.CloudActionStatusRunning}).
		Count(&pending).Error
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}
	if pending > 0 {
		httpx.FailErr(c, httpx.ErrStateConflict("credential is used by pending actions"))
		return
	}

	res := h.db.Where("id = ? AND user_id = ?", req.ID, c.GetInt("uid")).Delete(&model.MendixCredential{})
	if res.Error != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete credential", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		httpx.FailErr(c, httpx.ErrNotFound("credential not found"))
		return
	}
	httpx.OK(c, nil)
}
