package apps

import (
	"errors"
	"time"

	"mxops/internal/config"
	"mxops/internal/httpx"
	"mxops/internal/mendix"
	"mxops/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateRequest represents register app request
type CreateRequest struct {
	CredentialID int64  `json:"credential_id" binding:"required"`
	AppID        string `json:"app_id" binding:"required"`
	ProjectID    string `json:"project_id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
}

// DeleteRequest represents delete app request
type DeleteRequest struct {
	ID int `json:"id" binding:"required"`
}

// Handler handles Mendix app registry API
type Handler struct {
	db         *gorm.DB
	apiBaseURL string
	apiTimeout time.Duration
}

// NewHandler creates a new apps handler
func NewHandler(db *gorm.DB, cfg *config.Config) *Handler {
	return &Handler{
		db:         db,
		apiBaseURL: cfg.Mendix.BaseURL,
		apiTimeout: time.Duration(cfg.Mendix.TimeoutSec) * time.Second,
	}
}

// Create handles POST /api/v1/apps
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	// Credential ownership check keeps apps scoped to the caller
	var cred model.MendixCredential
	if err := h.db.Where("id = ? AND user_id = ?", req.CredentialID, c.GetInt("uid")).First(&cred).Error; err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("credential not found"))
		return
	}

	app := model.MendixApp{
		CredentialID: req.CredentialID,
		AppID:        req.AppID,
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		URL:          req.URL,
	}
	if err := h.db.Create(&app).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to register app", err))
		return
	}
	httpx.OK(c, app)
}

// List handles GET /api/v1/apps
func (h *Handler) List(c *gin.Context) {
	var apps []model.MendixApp
	err := h.db.
		Joins("JOIN mendix_credentials ON mendix_credentials.id = mendix_apps.credential_id").
		Where("mendix_credentials.user_id = ?", c.GetInt("uid")).
		Order("mendix_apps.id ASC").
		Find(&apps).Error
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list apps", err))
		return
	}
	httpx.OK(c, apps)
}

// Packages handles GET /api/v1/apps/:id/packages: proxies the platform's
// deployment package list, mainly to pick a package_id for transport.
func (h *Handler) Packages(c *gin.Context) {
	var app model.MendixApp
	err := h.db.
		Joins("JOIN mendix_credentials ON mendix_credentials.id = mendix_apps.credential_id").
		Where("mendix_apps.id = ? AND mendix_credentials.user_id = ?", c.Param("id"), c.GetInt("uid")).
		First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("app not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("database error", err))
		return
	}

	var cred model.MendixCredential
	if err := h.db.First(&cred, app.CredentialID).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to resolve credential", err))
		return
	}

	client := mendix.NewClient(h.apiBaseURL, mendix.Credential{
		Username: cred.Username,
		APIKey:   cred.APIKey,
	}, h.apiTimeout)

	packages, err := client.ListPackages(c.Request.Context(), app.AppID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrExternalError("failed to list packages", err))
		return
	}
	httpx.OK(c, packages)
}

// Delete handles POST /api/v1/apps/delete
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	res := h.db.
		Where("id = ? AND credential_id IN (?)", req.ID,
			h.db.Model(&model.MendixCredential{}).Select("id").Where("user_id = ?", c.GetInt("uid"))).
		Delete(&model.MendixApp{})
	if res.Error != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete app", res.Error))
		return
	}
	if res.RowsAffected == 0 {
		httpx.FailErr(c, httpx.ErrNotFound("app not found"))
		return
	}
	httpx.OK(c, nil)
}
