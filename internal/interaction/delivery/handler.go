package delivery

import (
	"net/http"
	"strconv"

	accountdelivery "relaydesk-backend/internal/account/delivery"
	"relaydesk-backend/internal/interaction/usecase"

	"github.com/gin-gonic/gin"
)

type InteractionHandler struct {
	ledgerUsecase usecase.LedgerUsecase
}

func NewInteractionHandler(ledgerUsecase usecase.LedgerUsecase) *InteractionHandler {
	return &InteractionHandler{ledgerUsecase: ledgerUsecase}
}

// GetTimeline GET /api/profiles/:id/interactions?limit=100
func (h *InteractionHandler) GetTimeline(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	interactions, err := h.ledgerUsecase.Timeline(c.Request.Context(), accountdelivery.AccountID(c), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}
