package api

import (
	"net/http"

	accountDelivery "relaydesk-backend/internal/account/delivery"
	activityDelivery "relaydesk-backend/internal/activity/delivery"
	channelDelivery "relaydesk-backend/internal/channel/delivery"
	inboxDelivery "relaydesk-backend/internal/inbox/delivery"
	interactionDelivery "relaydesk-backend/internal/interaction/delivery"
	meetingDelivery "relaydesk-backend/internal/meeting/delivery"
	profileDelivery "relaydesk-backend/internal/profile/delivery"
	"relaydesk-backend/internal/syncjob"
	"relaydesk-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	config             *config.Config
	accountHandler     *accountDelivery.AccountHandler
	profileHandler     *profileDelivery.ProfileHandler
	interactionHandler *interactionDelivery.InteractionHandler
	meetingHandler     *meetingDelivery.MeetingHandler
	inboxHandler       *inboxDelivery.InboxHandler
	activityHandler    *activityDelivery.ActivityHandler
	channelHandler     *channelDelivery.ChannelHandler
	jobs               *syncjob.Registry
}

// Handlers groups the delivery handlers built in main.
type Handlers struct {
	Account     *accountDelivery.AccountHandler
	Profile     *profileDelivery.ProfileHandler
	Interaction *interactionDelivery.InteractionHandler
	Meeting     *meetingDelivery.MeetingHandler
	Inbox       *inboxDelivery.InboxHandler
	Activity    *activityDelivery.ActivityHandler
	Channel     *channelDelivery.ChannelHandler
}

func NewHandler(cfg *config.Config, handlers Handlers, jobs *syncjob.Registry) *Handler {
	// Initialize runtime config for settings API
	InitRuntimeConfig(cfg.OllamaBaseURL, cfg.OllamaModel)

	return &Handler{
		config:             cfg,
		accountHandler:     handlers.Account,
		profileHandler:     handlers.Profile,
		interactionHandler: handlers.Interaction,
		meetingHandler:     handlers.Meeting,
		inboxHandler:       handlers.Inbox,
		activityHandler:    handlers.Activity,
		channelHandler:     handlers.Channel,
		jobs:               jobs,
	}
}

// Router builds the gin engine with CORS and every route.
func (h *Handler) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Hub-Signature-256")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)
	return r
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	return h.Router().Run(addr)
}
