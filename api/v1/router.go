package v1

import (
	"mxops/api/v1/actions"
	"mxops/api/v1/apps"
	"mxops/api/v1/auth"
	"mxops/api/v1/credentials"
	"mxops/api/v1/middleware"
	"mxops/internal/action"
	"mxops/internal/config"
	"mxops/internal/httpx"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config, worker *action.Worker) {
	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			// Cloud action routes
			actionsHandler := actions.NewHandler(db, worker)
			actionsGroup := protected.Group("/actions")
			{
				actionsGroup.POST("", actionsHandler.Create)
				actionsGroup.GET("", actionsHandler.List)
				actionsGroup.POST("/run", actionsHandler.Run)
				actionsGroup.GET("/:id", actionsHandler.Get)
				actionsGroup.GET("/:id/logs", actionsHandler.Logs)
			}

			// Credential routes
			credentialsHandler := credentials.NewHandler(db)
			credentialsGroup := protected.Group("/credentials")
			{
				credentialsGroup.POST("", credentialsHandler.Create)
				credentialsGroup.GET("", credentialsHandler.List)
				credentialsGroup.POST("/delete", credentialsHandler.Delete)
			}

			// App registry routes
			appsHandler := apps.NewHandler(db, cfg)
			appsGroup := protected.Group("/apps")
			{
				appsGroup.POST("", appsHandler.Create)
				appsGroup.GET("", appsHandler.List)
				appsGroup.GET("/:id/packages", appsHandler.Packages)
				appsGroup.POST("/delete", appsHandler.Delete)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
