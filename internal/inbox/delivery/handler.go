package delivery

import (
	"net/http"
	"strconv"

	accountdelivery "relaydesk-backend/internal/account/delivery"
	"relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/internal/inbox/usecase"
	"relaydesk-backend/pkg/types"

	"github.com/gin-gonic/gin"
)

type InboxHandler struct {
	inboxUsecase usecase.InboxUsecase
}

func NewInboxHandler(inboxUsecase usecase.InboxUsecase) *InboxHandler {
	return &InboxHandler{inboxUsecase: inboxUsecase}
}

// ListMessages GET /api/messages?direction=&transport=&status=&limit=50&offset=0
func (h *InboxHandler) ListMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, total, err := h.inboxUsecase.List(c.Request.Context(), accountdelivery.AccountID(c), domain.ListFilter{
		Direction: c.Query("direction"),
		Transport: types.Channel(c.Query("transport")),
		Status:    c.Query("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total": total})
}
