package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/arif-dev/tuition-track-api/internal/middleware"
	"github.com/arif-dev/tuition-track-api/internal/models"
	"github.com/arif-dev/tuition-track-api/internal/service"
)

// Handlers groups every HTTP handler for route registration.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Attendance *AttendanceHandler
	Fees       *FeeHandler
	Analytics  *AnalyticsHandler
	Metrics    *MetricsHandler

	// ExportsEnabled gates the CSV and PDF download endpoints.
	ExportsEnabled bool
}

// RegisterRoutes mounts every endpoint under the API prefix.
func RegisterRoutes(r *gin.Engine, prefix string, auth *service.AuthService, h Handlers) {
	r.GET("/metrics", h.Metrics.Prometheus)

	api := r.Group(prefix)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/lookup-email", h.Auth.LookupEmail)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.POST("/change-password", middleware.JWT(auth), h.Auth.ChangePassword)
	}

	users := api.Group("/users", middleware.JWT(auth))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Users.List)
		users.GET("/:id", middleware.RBAC("ADMIN", "TEACHER", "SELF"), h.Users.Get)
		users.POST("", middleware.RequireRoles(models.RoleAdmin), h.Users.Create)
		users.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Update)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Users.Delete)
	}

	attendance := api.Group("/attendance", middleware.JWT(auth))
	{
		attendance.POST("", middleware.RequireRoles(models.RoleStudent), h.Attendance.Mark)
		attendance.POST("/bulk", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Attendance.Bulk)
		attendance.POST("/:id/approve", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Attendance.Approve)
		attendance.POST("/:id/reject", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Attendance.Reject)
		attendance.GET("", h.Attendance.List)
	}

	fees := api.Group("/fees", middleware.JWT(auth))
	{
		fees.POST("/recalculate", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Fees.Recalculate)
	}

	students := api.Group("/students", middleware.JWT(auth))
	{
		students.GET("/:id/fees", middleware.RBAC("ADMIN", "TEACHER", "SELF"), h.Fees.StudentFees)
		students.POST("/:id/fees/:month/pay", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), h.Fees.Pay)
		if h.ExportsEnabled {
			students.GET("/:id/fees/:month/receipt", middleware.RBAC("ADMIN", "TEACHER", "SELF"), h.Fees.Receipt)
		}
	}

	analytics := api.Group("/analytics", middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher))
	{
		analytics.GET("/revenue", h.Analytics.Revenue)
		analytics.GET("/attendance", h.Analytics.Attendance)
		if h.ExportsEnabled {
			analytics.GET("/revenue/export", h.Analytics.RevenueCSV)
		}
		analytics.POST("/backfill", middleware.RequireRoles(models.RoleAdmin), h.Analytics.Backfill)
	}
}
