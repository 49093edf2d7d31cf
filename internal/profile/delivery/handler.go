package delivery

import (
	"errors"
	"net/http"
	"strconv"

	accountdelivery "relaydesk-backend/internal/account/delivery"
	"relaydesk-backend/internal/profile/domain"
	"relaydesk-backend/internal/profile/dto"
	"relaydesk-backend/internal/profile/usecase"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profileUsecase usecase.ProfileUsecase
}

func NewProfileHandler(profileUsecase usecase.ProfileUsecase) *ProfileHandler {
	return &ProfileHandler{profileUsecase: profileUsecase}
}

func profileError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSelfMerge), errors.Is(err, domain.ErrCrossOwnerMerge):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIdentifierTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ListProfiles GET /api/profiles?limit=50&offset=0
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	profiles, total, err := h.profileUsecase.List(c.Request.Context(), accountdelivery.AccountID(c), limit, offset)
	if err != nil {
		profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "total": total})
}

// SearchProfiles GET /api/profiles/search?q=
func (h *ProfileHandler) SearchProfiles(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	profiles, err := h.profileUsecase.Search(c.Request.Context(), accountdelivery.AccountID(c), query, limit)
	if err != nil {
		profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// MergeSuggestions GET /api/profiles/suggestions
func (h *ProfileHandler) MergeSuggestions(c *gin.Context) {
	suggestions, err := h.profileUsecase.Suggestions(c.Request.Context(), accountdelivery.AccountID(c))
	if err != nil {
		profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// GetProfile GET /api/profiles/:id
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profileUsecase.Get(c.Request.Context(), accountdelivery.AccountID(c), c.Param("id"))
	if err != nil {
		profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateProfile PATCH /api/profiles/:id
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.profileUsecase.Update(c.Request.Context(), accountdelivery.AccountID(c), c.Param("id"), domain.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		ChatID:   req.ChatID,
		Metadata: req.Metadata,
	})
	if err != nil {
		profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// MergeProfiles POST /api/profiles/merge
func (h *ProfileHandler) MergeProfiles(c *gin.Context) {
	var req dto.MergeProfilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.profileUsecase.Merge(c.Request.Context(), accountdelivery.AccountID(c), req.SourceID, req.TargetID)
	if err != nil {
		profileError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
