package handler

import (
	"errors"
	"net/http"
	"strings"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/command"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/goliatone/go-router"
)

// VerificationResponse is returned once a verification link is consumed.
type VerificationResponse struct {
	OK          bool   `json:"ok"`
	UserID      string `json:"userId"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// VerificationHandler consumes the links sent by the verification email.
type VerificationHandler struct {
	confirm gocommand.Commander[command.VerificationConfirmInput]
	logger  types.Logger
}

// NewVerificationHandler constructs the handler.
func NewVerificationHandler(confirm gocommand.Commander[command.VerificationConfirmInput], logger types.Logger) *VerificationHandler {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &VerificationHandler{confirm: confirm, logger: logger}
}

// Confirm handles GET /verify?token=...; outcomes are reported with HTTP 200.
func (h *VerificationHandler) Confirm(c router.Context) error {
	return h.handleConfirm(c)
}

func (h *VerificationHandler) handleConfirm(c requestContext) error {
	if h.confirm == nil {
		return failOK(c, types.ErrServiceNotReady.Error())
	}
	token := strings.TrimSpace(c.Query("token", ""))
	if token == "" {
		return failOK(c, "Token is required")
	}
	result := &command.VerificationConfirmResult{}
	if err := h.confirm.Execute(requestCtx(c), command.VerificationConfirmInput{Token: token, Result: result}); err != nil {
		return failOK(c, verificationMessage(err))
	}
	return c.JSON(http.StatusOK, VerificationResponse{
		OK:          true,
		UserID:      result.UserID.String(),
		RedirectURL: result.RedirectURL,
	})
}

func verificationMessage(err error) string {
	switch {
	case errors.Is(err, command.ErrTokenExpired):
		return "Verification link has expired"
	case errors.Is(err, command.ErrTokenAlreadyUsed):
		return "Verification link has already been used"
	default:
		return "Invalid verification link"
	}
}
