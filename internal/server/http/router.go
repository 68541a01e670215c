package httpserver

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires routes and middleware.
func NewRouter(h *Handler, auth *Auth, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	api := r.Group("/api/v1", auth.Verify)
	{
		creds := api.Group("/credentials")
		{
			creds.GET("", h.List)
			creds.POST("", h.Create)
			creds.POST("/test", h.TestConnection)
			creds.GET("/export", h.Export)
			creds.POST("/bulk/connect", h.BulkConnect)
			creds.POST("/bulk/disconnect", h.BulkDisconnect)
			creds.PATCH("/:id", h.Edit)
			creds.PUT("/:id/token", h.UpdateToken)
			creds.POST("/:id/activation", h.ToggleActivation)
			creds.POST("/:id/connect", h.Connect)
			creds.POST("/:id/disconnect", h.Disconnect)
			creds.POST("/:id/reveal", h.Reveal)
			creds.DELETE("/:id", h.Delete)
		}

		sel := api.Group("/selection")
		{
			sel.GET("", h.Selection)
			sel.POST("/toggle", h.SelectionToggle)
			sel.POST("/all", h.SelectionAll)
			sel.POST("/clear", h.SelectionClear)
		}
	}

	return r
}
