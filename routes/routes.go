package routes

import (
	"os"

	"marketplace-review-api/controllers"
	"marketplace-review-api/middleware"
	"marketplace-review-api/services"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine) {
	var notifier services.Notifier
	if os.Getenv("SMTP_HOST") != "" {
		notifier = services.NewMailNotifier(nil)
	}
	review := controllers.NewReviewController(nil, nil, notifier)

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			// Authentication
			public.POST("/login", controllers.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Marketplace Review API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Reviewer tools
			reviewers := protected.Group("/reviewers")
			reviewers.Use(middleware.RequireReviewer())
			{
				// Queues
				reviewers.GET("/queues", controllers.GetQueueCounts)
				reviewers.GET("/queues/:name", controllers.GetQueue)

				// Review decisions
				reviewers.GET("/apps/:id/actions", review.GetActions)
				reviewers.POST("/apps/:id/review", review.PerformAction)

				// Viewing claims
				reviewers.POST("/apps/:id/viewing", controllers.PostReviewViewing)
				reviewers.GET("/reviewing", controllers.GetMyReviewing)

				// Scores
				reviewers.GET("/score", controllers.GetMyScore)
				reviewers.GET("/leaderboard", controllers.GetLeaderboard)
			}
		}
	}
}
