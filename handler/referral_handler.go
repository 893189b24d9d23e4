package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-referrals/command"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Fixed error strings of the provisioning contract.
const (
	MessageMethodNotAllowed = "Method Not Allowed"
	MessageEmailRequired    = "Email is required"
	MessageInvalidJSON      = "Invalid JSON body"
	MessageInvalidReferrer  = "Invalid referrerId"
	MessageInvalidGroup     = "Invalid groupId"
)

// ProvisionRequest is the JSON body accepted by POST /referrals.
type ProvisionRequest struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Note       string `json:"note"`
	ReferrerID string `json:"referrerId"`
	GroupID    string `json:"groupId"`
}

// ProvisionResponse is the success and partial-success body.
type ProvisionResponse struct {
	OK                 bool     `json:"ok"`
	UserID             string   `json:"userId"`
	ReferralID         *string  `json:"referralId"`
	ReferralCreated    bool     `json:"referralCreated"`
	MembershipCreated  bool     `json:"membershipCreated"`
	ReusedExistingUser bool     `json:"reusedExistingUser"`
	Warnings           []string `json:"warnings,omitempty"`
}

// ReferralView is the listing representation of a referral row.
type ReferralView struct {
	ID             string    `json:"id"`
	GroupID        *string   `json:"groupId"`
	ReferrerID     *string   `json:"referrerId"`
	ReferredUserID string    `json:"referredUserId"`
	ChurchID       *string   `json:"churchId"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ReferralListResponse is returned by GET /referrals.
type ReferralListResponse struct {
	OK         bool           `json:"ok"`
	Referrals  []ReferralView `json:"referrals"`
	Total      int            `json:"total"`
	NextOffset int            `json:"nextOffset"`
	HasMore    bool           `json:"hasMore"`
}

// ActorResolver extracts the authenticated actor from the request context.
type ActorResolver func(context.Context) types.ActorRef

// ReferralHandlerConfig wires the referral endpoints.
type ReferralHandlerConfig struct {
	Provision gocommand.Commander[command.ReferralProvisionInput]
	List      gocommand.Querier[types.ReferralFilter, types.ReferralPage]
	Actor     ActorResolver
	Logger    types.Logger
}

// ReferralHandler serves the provisioning endpoint and the referrer
// dashboard listing.
type ReferralHandler struct {
	provision gocommand.Commander[command.ReferralProvisionInput]
	list      gocommand.Querier[types.ReferralFilter, types.ReferralPage]
	actor     ActorResolver
	logger    types.Logger
}

// NewReferralHandler constructs the handler.
func NewReferralHandler(cfg ReferralHandlerConfig) *ReferralHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &ReferralHandler{
		provision: cfg.Provision,
		list:      cfg.List,
		actor:     cfg.Actor,
		logger:    logger,
	}
}

// Provision handles POST /referrals. Every outcome is reported with HTTP 200.
func (h *ReferralHandler) Provision(c router.Context) error {
	return h.handleProvision(c)
}

// List handles GET /referrals.
func (h *ReferralHandler) List(c router.Context) error {
	return h.handleList(c)
}

func (h *ReferralHandler) handleProvision(c requestContext) error {
	if c.Method() != http.MethodPost {
		return failOK(c, MessageMethodNotAllowed)
	}
	if h.provision == nil {
		return failOK(c, types.ErrServiceNotReady.Error())
	}

	req, message := decodeProvisionRequest(c.Body())
	if message != "" {
		return failOK(c, message)
	}
	referrerID, err := parseOptionalUUID(req.ReferrerID)
	if err != nil {
		return failOK(c, MessageInvalidReferrer)
	}
	groupID, err := parseOptionalUUID(req.GroupID)
	if err != nil {
		return failOK(c, MessageInvalidGroup)
	}

	ctx := requestCtx(c)
	var actor types.ActorRef
	if h.actor != nil {
		actor = h.actor(ctx)
	}
	result := &command.ReferralProvisionResult{}
	err = h.provision.Execute(ctx, command.ReferralProvisionInput{
		Email:      req.Email,
		Phone:      req.Phone,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Note:       req.Note,
		ReferrerID: referrerID,
		GroupID:    groupID,
		Actor:      actor,
		Result:     result,
	})
	if err != nil {
		h.logger.Error("referral provisioning failed", err, "step", result.FailedStep)
		return failOK(c, FailureMessage(err, result))
	}
	return c.JSON(http.StatusOK, NewProvisionResponse(*result))
}

func decodeProvisionRequest(body []byte) (ProvisionRequest, string) {
	var req ProvisionRequest
	if len(bytes.TrimSpace(body)) == 0 {
		return req, MessageEmailRequired
	}
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "email" {
			return req, MessageEmailRequired
		}
		return req, MessageInvalidJSON
	}
	if strings.TrimSpace(req.Email) == "" {
		return req, MessageEmailRequired
	}
	return req, ""
}

// FailureMessage picks the message reported for a fatal provisioning error.
func FailureMessage(err error, result *command.ReferralProvisionResult) string {
	if result != nil && result.Error != "" {
		return result.Error
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	if errors.Is(err, command.ErrReferralEmailRequired) {
		return MessageEmailRequired
	}
	return err.Error()
}

// NewProvisionResponse maps a command result onto the response body.
func NewProvisionResponse(result command.ReferralProvisionResult) ProvisionResponse {
	resp := ProvisionResponse{
		OK:                 result.OK,
		ReferralID:         uuidString(result.ReferralID),
		ReferralCreated:    result.ReferralCreated,
		MembershipCreated:  result.MembershipCreated,
		ReusedExistingUser: result.ReusedExistingUser,
		Warnings:           result.Warnings,
	}
	if result.UserID != uuid.Nil {
		resp.UserID = result.UserID.String()
	}
	return resp
}

func (h *ReferralHandler) handleList(c requestContext) error {
	if h.list == nil {
		return fail(c, http.StatusServiceUnavailable, types.ErrServiceNotReady.Error())
	}
	filter := types.ReferralFilter{
		Pagination: types.Pagination{
			Limit:  queryInt(c, "limit"),
			Offset: queryInt(c, "offset"),
		},
	}
	var err error
	if filter.ReferrerID, err = parseOptionalUUID(c.Query("referrerId", "")); err != nil {
		return fail(c, http.StatusBadRequest, MessageInvalidReferrer)
	}
	if filter.GroupID, err = parseOptionalUUID(c.Query("groupId", "")); err != nil {
		return fail(c, http.StatusBadRequest, MessageInvalidGroup)
	}
	if filter.ReferredUserID, err = parseOptionalUUID(c.Query("referredUserId", "")); err != nil {
		return fail(c, http.StatusBadRequest, "Invalid referredUserId")
	}

	page, err := h.list.Query(requestCtx(c), filter)
	if err != nil {
		h.logger.Error("referral listing failed", err)
		return fail(c, http.StatusInternalServerError, "unable to list referrals")
	}
	views := make([]ReferralView, 0, len(page.Referrals))
	for _, ref := range page.Referrals {
		views = append(views, ReferralView{
			ID:             ref.ID.String(),
			GroupID:        uuidString(ref.GroupID),
			ReferrerID:     uuidString(ref.ReferrerID),
			ReferredUserID: ref.ReferredUserID.String(),
			ChurchID:       uuidString(ref.ChurchID),
			Note:           ref.Note,
			CreatedAt:      ref.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, ReferralListResponse{
		OK:         true,
		Referrals:  views,
		Total:      page.Total,
		NextOffset: page.NextOffset,
		HasMore:    page.HasMore,
	})
}
