package main

import (
	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/internal/handlers"
	"github.com/taskboard/backend/internal/middleware"
	"github.com/taskboard/backend/internal/services"
	"github.com/taskboard/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(svc.db, svc.taskQueue, svc.cachePinger())
	r.GET("/health", healthHandler.CheckHealth)

	api := r.Group("/api")
	{
		authHandler := handlers.NewAuthHandler(svc.authService)

		// Auth routes (public, rate limited per IP)
		auth := api.Group("/auth", svc.authLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
		}

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.authService), middleware.AuditLog())
		{
			protected.GET("/auth/me", authHandler.Me)
			protected.POST("/auth/logout", authHandler.Logout)

			// Projects
			projectHandler := handlers.NewProjectHandler(svc.db, svc.taskQueue)
			protected.GET("/projects", projectHandler.List)
			protected.POST("/projects", projectHandler.Create)
			protected.GET("/projects/:id", projectHandler.Get)
			protected.PATCH("/projects/:id", projectHandler.Update)
			protected.DELETE("/projects/:id", projectHandler.Delete)

			// Members
			membershipHandler := handlers.NewMembershipHandler(svc.db)
			protected.GET("/projects/:id/members", membershipHandler.List)
			protected.POST("/projects/:id/members", membershipHandler.Invite)
			protected.DELETE("/projects/:id/members/:membershipId", membershipHandler.Remove)

			// Tasks
			taskHandler := handlers.NewTaskHandler(svc.db, svc.taskQueue)
			protected.GET("/projects/:id/tasks", taskHandler.List)
			protected.POST("/projects/:id/tasks", taskHandler.Create)
			protected.PATCH("/projects/:id/tasks/:taskId", taskHandler.Update)
			protected.DELETE("/projects/:id/tasks/:taskId", taskHandler.Delete)
			protected.GET("/projects/:id/board", taskHandler.Board)

			// Activity
			activityHandler := handlers.NewActivityHandler(svc.db)
			protected.GET("/projects/:id/activity", activityHandler.List)

			// Analytics
			analyticsHandler := handlers.NewAnalyticsHandler(services.NewAnalyticsService(svc.db, svc.analyticsCounter()))
			protected.GET("/analytics", analyticsHandler.Summary)
		}
	}
}
