package delivery

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	accountdomain "relaydesk-backend/internal/account/domain"
	"relaydesk-backend/internal/channel/domain"
	"relaydesk-backend/internal/channel/usecase"
	profiledomain "relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/pkg/types"
	"relaydesk-backend/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

// ProcessTimeout bounds background processing of one webhook call
const ProcessTimeout = 2 * time.Minute

type AccountLookup interface {
	Get(ctx context.Context, id string) (*accountdomain.Account, error)
}

// WebhookConfig holds the WhatsApp webhook secrets. An empty AppSecret
// disables signature checks.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
}

type ChannelHandler struct {
	channelUsecase usecase.ChannelUsecase
	accounts       AccountLookup
	cfg            WebhookConfig
	// dispatch runs webhook work after the response is written
	dispatch func(fn func())
}

func NewChannelHandler(channelUsecase usecase.ChannelUsecase, accounts AccountLookup, cfg WebhookConfig) *ChannelHandler {
	return &ChannelHandler{
		channelUsecase: channelUsecase,
		accounts:       accounts,
		cfg:            cfg,
		dispatch:       func(fn func()) { go fn() },
	}
}

func (h *ChannelHandler) requireOwner(c *gin.Context) (string, bool) {
	ownerID := strings.TrimSpace(c.Param("ownerId"))
	account, err := h.accounts.Get(c.Request.Context(), ownerID)
	if err != nil && !errors.Is(err, accountdomain.ErrAccountNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return "", false
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": accountdomain.ErrAccountNotFound.Error()})
		return "", false
	}
	return account.ID, true
}

// VerifyWhatsApp GET /api/webhooks/whatsapp/:ownerId
func (h *ChannelHandler) VerifyWhatsApp(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if h.cfg.VerifyToken != "" && mode == "subscribe" && token == h.cfg.VerifyToken && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}
	log.Printf("[Webhook] verification rejected for %s (mode=%s)", c.Param("ownerId"), mode)
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

// ReceiveWhatsApp POST /api/webhooks/whatsapp/:ownerId
func (h *ChannelHandler) ReceiveWhatsApp(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if h.cfg.AppSecret != "" && !whatsapp.ValidSignature(h.cfg.AppSecret, raw, c.GetHeader("X-Hub-Signature-256")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	ownerID, ok := h.requireOwner(c)
	if !ok {
		return
	}

	payload, err := ParsePayload(c.ContentType(), raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "received",
		"messages": len(payload.Events),
		"statuses": len(payload.Statuses),
	})

	h.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), ProcessTimeout)
		defer cancel()
		h.process(ctx, ownerID, types.ChannelWhatsApp, payload)
	})
}

func (h *ChannelHandler) process(ctx context.Context, ownerID string, channel types.Channel, payload domain.Payload) {
	for _, st := range payload.Statuses {
		if err := h.channelUsecase.HandleStatus(ctx, st); err != nil {
			log.Printf("[Webhook] error: status %s for %s: %v", st.Status, st.ExternalID, err)
		}
	}
	for _, ev := range payload.Events {
		if _, err := h.channelUsecase.HandleMessage(ctx, ownerID, channel, ev); err != nil {
			log.Printf("[Webhook] error: %s message from %s: %v", channel, ev.Sender, err)
		}
	}
}

type voiceRequest struct {
	Caller     string `json:"caller" binding:"required"`
	Transcript string `json:"transcript" binding:"required"`
	CallID     string `json:"call_id"`
}

// ReceiveVoice POST /api/webhooks/voice/:ownerId
// The reply is returned for the voice agent to speak.
func (h *ChannelHandler) ReceiveVoice(c *gin.Context) {
	var req voiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, ok := h.requireOwner(c)
	if !ok {
		return
	}

	h.respondSync(c, ownerID, types.ChannelVoice, domain.InboundEvent{
		Sender:     normalizePhone(req.Caller),
		Message:    strings.TrimSpace(req.Transcript),
		ExternalID: req.CallID,
	})
}

type chatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Name      string `json:"name"`
	Message   string `json:"message" binding:"required"`
	MessageID string `json:"message_id"`
}

// SendChatMessage POST /api/chat/:ownerId/messages
func (h *ChannelHandler) SendChatMessage(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ownerID, ok := h.requireOwner(c)
	if !ok {
		return
	}

	h.respondSync(c, ownerID, types.ChannelChat, domain.InboundEvent{
		Sender:     strings.TrimSpace(req.SessionID),
		SenderName: req.Name,
		Message:    strings.TrimSpace(req.Message),
		ExternalID: req.MessageID,
	})
}

func (h *ChannelHandler) respondSync(c *gin.Context, ownerID string, channel types.Channel, ev domain.InboundEvent) {
	result, err := h.channelUsecase.HandleMessage(c.Request.Context(), ownerID, channel, ev)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyEvent), errors.Is(err, profiledomain.ErrMissingIdentifier):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if result.Reply == nil {
		c.JSON(http.StatusOK, gin.H{"duplicate": result.Decision.Duplicate, "reason": result.Decision.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply":      result.Reply.Text,
		"profile_id": result.Reply.ProfileID,
		"booking":    result.Reply.Booking,
	})
}
