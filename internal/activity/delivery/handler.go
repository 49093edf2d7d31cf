package delivery

import (
	"net/http"
	"strconv"

	accountdelivery "relaydesk-backend/internal/account/delivery"
	"relaydesk-backend/internal/activity/domain"
	"relaydesk-backend/internal/activity/usecase"

	"github.com/gin-gonic/gin"
)

type ActivityHandler struct {
	activityUsecase usecase.ActivityUsecase
}

func NewActivityHandler(activityUsecase usecase.ActivityUsecase) *ActivityHandler {
	return &ActivityHandler{activityUsecase: activityUsecase}
}

// ListActivity GET /api/activity?severity=&kind=&limit=
func (h *ActivityHandler) ListActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.activityUsecase.List(c.Request.Context(), accountdelivery.AccountID(c), domain.ListFilter{
		Severity: c.Query("severity"),
		Kind:     c.Query("kind"),
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
