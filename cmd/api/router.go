package api

import (
	"net/http"

	accountDelivery "relaydesk-backend/internal/account/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	auth := accountDelivery.AuthMiddleware(h.config.JWTSecret)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Channel webhooks (public, signature-verified where supported)
		if h.channelHandler != nil {
			webhooks := api.Group("/webhooks")
			{
				webhooks.GET("/whatsapp/:ownerId", h.channelHandler.VerifyWhatsApp)
				webhooks.POST("/whatsapp/:ownerId", h.channelHandler.ReceiveWhatsApp)
				webhooks.POST("/voice/:ownerId", h.channelHandler.ReceiveVoice)
			}
			api.POST("/chat/:ownerId/messages", h.channelHandler.SendChatMessage)
		}

		// Account routes (protected)
		account := api.Group("/account")
		account.Use(auth)
		{
			account.GET("", h.accountHandler.GetAccount)
			account.PUT("", h.accountHandler.UpsertAccount)
		}

		devices := api.Group("/devices")
		devices.Use(auth)
		{
			devices.POST("", h.accountHandler.RegisterDevice)
			devices.DELETE("/:token", h.accountHandler.UnregisterDevice)
		}

		// Profile routes (protected)
		profiles := api.Group("/profiles")
		profiles.Use(auth)
		{
			profiles.GET("", h.profileHandler.ListProfiles)
			profiles.GET("/search", h.profileHandler.SearchProfiles)
			profiles.GET("/suggestions", h.profileHandler.MergeSuggestions)
			profiles.POST("/merge", h.profileHandler.MergeProfiles)
			profiles.GET("/:id", h.profileHandler.GetProfile)
			profiles.PATCH("/:id", h.profileHandler.UpdateProfile)
			profiles.GET("/:id/interactions", h.interactionHandler.GetTimeline)
		}

		// Meeting routes (protected)
		meetings := api.Group("/meetings")
		meetings.Use(auth)
		{
			meetings.GET("", h.meetingHandler.ListMeetings)
			meetings.POST("", h.meetingHandler.BookMeeting)
			meetings.DELETE("/:id", h.meetingHandler.CancelMeeting)
		}

		api.GET("/messages", auth, h.inboxHandler.ListMessages)
		api.GET("/activity", auth, h.activityHandler.ListActivity)

		// Sync job status (protected)
		sync := api.Group("/sync")
		sync.Use(auth)
		{
			sync.GET("/status", h.GetSyncStatus)
			sync.POST("/:job/run", h.RunSyncJob)
		}

		// Settings routes (protected) - Runtime configuration
		settings := api.Group("/settings")
		settings.Use(auth)
		{
			settings.GET("/ollama", GetOllamaSettings)
			settings.PUT("/ollama", UpdateOllamaSettings)
			settings.POST("/ollama/test", TestOllamaConnection)
		}
	}
}
