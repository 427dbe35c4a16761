package handlers

import (
	"net/http"
	"strings"

	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/gin-gonic/gin"
)

// AccountHandler serves public account creation
type AccountHandler struct {
	creator        AccountCreator
	activityLogger *logging.ActivityLogger
}

// NewAccountHandler creates the account handler. activityLogger may be nil.
func NewAccountHandler(creator AccountCreator, activityLogger *logging.ActivityLogger) *AccountHandler {
	return &AccountHandler{creator: creator, activityLogger: activityLogger}
}

type createAccountRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateAccount provisions an end-user account
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	out := h.creator.Create(c.Request.Context(), accounts.Request{
		AccountName: req.Name,
		Password:    req.Password,
		Origin:      c.ClientIP(),
	})

	if h.activityLogger != nil {
		detail := ""
		if !out.Succeeded {
			detail = out.Message
		}
		h.activityLogger.LogAccountCreate(strings.TrimSpace(req.Name), c.ClientIP(), out.AttemptID, out.Succeeded, string(out.Kind), detail)
	}

	if out.Succeeded {
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    out.Message,
			"attempt_id": out.AttemptID,
		})
		return
	}

	message := out.Message
	if out.Kind == accounts.KindTransport {
		message = "Connection problem - server may be offline"
	}
	c.JSON(statusForKind(out.Kind), gin.H{
		"success":     false,
		"error":       message,
		"kind":        out.Kind,
		"failed_step": out.FailedStep(),
		"attempt_id":  out.AttemptID,
	})
}
