package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires every route. Everything except /login and /health needs a
// bearer token.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/login", h.Login)

	authed := r.Group("/")
	authed.Use(AuthMiddleware(h.tokens, h.users))

	authed.GET("/tasks", h.ListTasks)
	authed.POST("/tasks", h.CreateTask)
	authed.GET("/tasks/:id", h.GetTask)
	authed.POST("/tasks/:id/start", h.StartTask)
	authed.POST("/tasks/:id/complete", h.CompleteTask)
	authed.POST("/tasks/:id/audit/pass", h.PassAudit)
	authed.POST("/tasks/:id/audit/fail", h.FailAudit)
	authed.POST("/tasks/:id/cancel", h.CancelTask)

	authed.GET("/audits", h.AuditQueue)
	authed.GET("/stats", h.Stats)

	authed.GET("/users", h.ListUsers)
	authed.POST("/users", h.CreateUser)
	authed.POST("/users/:id/toggle", h.ToggleUser)

	return r
}
