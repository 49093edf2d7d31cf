package delivery

import (
	"errors"
	"net/http"

	"relaydesk-backend/internal/account/domain"
	"relaydesk-backend/internal/account/dto"
	"relaydesk-backend/internal/account/usecase"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountUsecase usecase.AccountUsecase
}

func NewAccountHandler(accountUsecase usecase.AccountUsecase) *AccountHandler {
	return &AccountHandler{accountUsecase: accountUsecase}
}

// GetAccount GET /api/account
func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.accountUsecase.Get(c.Request.Context(), AccountID(c))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

// UpsertAccount PUT /api/account
func (h *AccountHandler) UpsertAccount(c *gin.Context) {
	var req dto.UpsertAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountUsecase.Upsert(c.Request.Context(), AccountID(c), &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidProvider) || errors.Is(err, domain.ErrMissingCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

// RegisterDevice POST /api/devices
func (h *AccountHandler) RegisterDevice(c *gin.Context) {
	var req dto.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.accountUsecase.RegisterDevice(c.Request.Context(), AccountID(c), req.Token, req.DeviceInfo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device registered"})
}

// UnregisterDevice DELETE /api/devices/:token
func (h *AccountHandler) UnregisterDevice(c *gin.Context) {
	if err := h.accountUsecase.UnregisterDevice(c.Request.Context(), c.Param("token")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device removed"})
}
