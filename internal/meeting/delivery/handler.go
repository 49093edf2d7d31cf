package delivery

import (
	"errors"
	"net/http"

	accountdelivery "relaydesk-backend/internal/account/delivery"
	"relaydesk-backend/internal/meeting/domain"
	"relaydesk-backend/internal/meeting/dto"
	"relaydesk-backend/internal/meeting/usecase"

	"github.com/gin-gonic/gin"
)

type MeetingHandler struct {
	meetingUsecase usecase.MeetingUsecase
}

func NewMeetingHandler(meetingUsecase usecase.MeetingUsecase) *MeetingHandler {
	return &MeetingHandler{meetingUsecase: meetingUsecase}
}

var statusByCode = map[string]int{
	domain.CodeCalendarNotConfigured: http.StatusPreconditionFailed,
	domain.CodeInvalidDateFormat:     http.StatusBadRequest,
	domain.CodePastDate:              http.StatusBadRequest,
	domain.CodeTimeConflict:          http.StatusConflict,
	domain.CodeCalendarAPIError:      http.StatusBadGateway,
}

// BookMeeting POST /api/meetings
func (h *MeetingHandler) BookMeeting(c *gin.Context) {
	var req dto.BookMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res := h.meetingUsecase.Schedule(c.Request.Context(), accountdelivery.AccountID(c), domain.BookingRequest{
		AttendeeEmail:   req.Email,
		Subject:         req.Subject,
		DateTime:        req.DateTime,
		DurationMinutes: req.DurationMinutes,
		Description:     req.Description,
		ProfileID:       req.ProfileID,
	})
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	status, ok := statusByCode[res.ErrorCode]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, res)
}

// ListMeetings GET /api/meetings?upcoming=true
func (h *MeetingHandler) ListMeetings(c *gin.Context) {
	meetings, err := h.meetingUsecase.List(c.Request.Context(), accountdelivery.AccountID(c), c.Query("upcoming") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

// CancelMeeting DELETE /api/meetings/:id
func (h *MeetingHandler) CancelMeeting(c *gin.Context) {
	meeting, err := h.meetingUsecase.Cancel(c.Request.Context(), accountdelivery.AccountID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrMeetingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meeting)
}
