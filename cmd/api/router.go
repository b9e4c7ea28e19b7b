package api

import (
	"net/http"

	"touchbase-backend/internal/auth/delivery"
	authUsecase "touchbase-backend/internal/auth/usecase"
	contactDelivery "touchbase-backend/internal/contact/delivery"
	contactUsecase "touchbase-backend/internal/contact/usecase"
	integrationDelivery "touchbase-backend/internal/integration/delivery"
	integrationUsecase "touchbase-backend/internal/integration/usecase"
	jobUsecase "touchbase-backend/internal/job/usecase"
	syncDelivery "touchbase-backend/internal/sync/delivery"
	syncUsecase "touchbase-backend/internal/sync/usecase"
	"touchbase-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	oauthUc *integrationUsecase.OAuthUsecase,
	contactUc *contactUsecase.ContactUsecase,
	deduplicator *contactUsecase.Deduplicator,
	orchestrator *syncUsecase.Orchestrator,
	jobUc *jobUsecase.JobUsecase,
	cfg *config.Config,
) {
	authHandler := delivery.NewAuthHandler(authUc)
	integrationHandler := integrationDelivery.NewIntegrationHandler(oauthUc)
	contactHandler := contactDelivery.NewContactHandler(contactUc, deduplicator)
	syncHandler := syncDelivery.NewSyncHandler(orchestrator, jobUc)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", delivery.AuthMiddleware(authUc), authHandler.Me)
		}

		// Integration routes. The callback is reached by provider redirect
		// and authenticates through the stored state instead.
		api.GET("/integrations/callback", integrationHandler.Callback)
		integrations := api.Group("/integrations")
		integrations.Use(delivery.AuthMiddleware(authUc))
		{
			integrations.GET("", integrationHandler.Status)
			integrations.POST("/:provider/connect", integrationHandler.Connect)
			integrations.DELETE("/:provider", integrationHandler.Disconnect)
		}

		// Contact routes (protected)
		contacts := api.Group("/contacts")
		contacts.Use(delivery.AuthMiddleware(authUc))
		{
			contacts.GET("", contactHandler.List)
			contacts.POST("", contactHandler.Create)
			contacts.GET("/duplicates", contactHandler.Duplicates)
			contacts.GET("/timeline", contactHandler.Timeline)
			contacts.GET("/:id", contactHandler.Get)
			contacts.PUT("/:id", contactHandler.Update)
			contacts.DELETE("/:id", contactHandler.Delete)
			contacts.GET("/:id/history", contactHandler.History)
		}

		// Sync routes (protected)
		syncRoutes := api.Group("/sync")
		syncRoutes.Use(delivery.AuthMiddleware(authUc))
		{
			syncRoutes.POST("/:provider/trigger", syncHandler.Trigger)
			syncRoutes.GET("/:provider/preview", syncHandler.Preview)
			syncRoutes.POST("/:provider/import", syncHandler.Import)
			syncRoutes.PUT("/:provider/settings", syncHandler.UpdateSettings)
			syncRoutes.GET("/settings", syncHandler.GetSettings)
			syncRoutes.GET("/jobs", syncHandler.ListJobs)
			syncRoutes.GET("/jobs/:id", syncHandler.JobStatus)
		}
	}
}
