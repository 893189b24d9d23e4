package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	gocommand "github.com/goliatone/go-command"
	"github.com/goliatone/go-referrals/command"
	"github.com/goliatone/go-referrals/pkg/types"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// MembershipDecisionRequest is the body of POST /memberships/:id/decision.
type MembershipDecisionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// MembershipView is the JSON representation of a membership.
type MembershipView struct {
	ID            string    `json:"id"`
	GroupID       string    `json:"groupId"`
	UserID        string    `json:"userId"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	ReferralID    *string   `json:"referralId"`
	JourneyStatus int       `json:"journeyStatus"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MembershipResponse wraps a single membership.
type MembershipResponse struct {
	OK         bool           `json:"ok"`
	Membership MembershipView `json:"membership"`
	FromStatus string         `json:"fromStatus,omitempty"`
}

// MembershipListResponse is returned by GET /groups/:id/memberships.
type MembershipListResponse struct {
	OK          bool             `json:"ok"`
	Memberships []MembershipView `json:"memberships"`
	Total       int              `json:"total"`
	NextOffset  int              `json:"nextOffset"`
	HasMore     bool             `json:"hasMore"`
}

// GroupStatsResponse is returned by GET /groups/:id/stats.
type GroupStatsResponse struct {
	OK     bool           `json:"ok"`
	Total  int            `json:"total"`
	ByVerb map[string]int `json:"byVerb"`
}

// MembershipHandlerConfig wires the group admin endpoints.
type MembershipHandlerConfig struct {
	Decide gocommand.Commander[command.MembershipDecisionInput]
	List   gocommand.Querier[types.MembershipFilter, types.MembershipPage]
	Stats  gocommand.Querier[types.ActivityStatsFilter, types.ActivityStats]
	Actor  ActorResolver
	Logger types.Logger
}

// MembershipHandler lets group admins review and decide pending memberships.
type MembershipHandler struct {
	decide gocommand.Commander[command.MembershipDecisionInput]
	list   gocommand.Querier[types.MembershipFilter, types.MembershipPage]
	stats  gocommand.Querier[types.ActivityStatsFilter, types.ActivityStats]
	actor  ActorResolver
	logger types.Logger
}

// NewMembershipHandler constructs the handler.
func NewMembershipHandler(cfg MembershipHandlerConfig) *MembershipHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &MembershipHandler{
		decide: cfg.Decide,
		list:   cfg.List,
		stats:  cfg.Stats,
		actor:  cfg.Actor,
		logger: logger,
	}
}

// Decide handles POST /memberships/:id/decision.
func (h *MembershipHandler) Decide(c router.Context) error {
	return h.handleDecide(c)
}

// List handles GET /groups/:id/memberships.
func (h *MembershipHandler) List(c router.Context) error {
	return h.handleList(c)
}

// Stats handles GET /groups/:id/stats.
func (h *MembershipHandler) Stats(c router.Context) error {
	return h.handleStats(c)
}

func (h *MembershipHandler) handleDecide(c requestContext) error {
	if h.decide == nil {
		return fail(c, http.StatusServiceUnavailable, types.ErrServiceNotReady.Error())
	}
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id", "")))
	if err != nil {
		return fail(c, http.StatusBadRequest, "Invalid membership id")
	}
	var req MembershipDecisionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fail(c, http.StatusBadRequest, MessageInvalidJSON)
	}
	target := types.MembershipStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if target == "" {
		return fail(c, http.StatusBadRequest, "Decision status is required")
	}

	ctx := requestCtx(c)
	var actor types.ActorRef
	if h.actor != nil {
		actor = h.actor(ctx)
	}
	result := &command.MembershipDecisionResult{}
	err = h.decide.Execute(ctx, command.MembershipDecisionInput{
		MembershipID: id,
		Target:       target,
		Actor:        actor,
		Reason:       req.Reason,
		Result:       result,
	})
	if err != nil {
		status := decisionStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("membership decision failed", err, "membership_id", id.String())
			return fail(c, status, "unable to decide membership")
		}
		return fail(c, status, err.Error())
	}
	resp := MembershipResponse{OK: true, FromStatus: string(result.FromStatus)}
	if result.Membership != nil {
		resp.Membership = newMembershipView(*result.Membership)
	}
	return c.JSON(http.StatusOK, resp)
}

func decisionStatus(err error) int {
	switch {
	case errors.Is(err, command.ErrMembershipIDRequired), errors.Is(err, command.ErrDecisionRequired):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrMembershipNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrTransitionNotAllowed), errors.Is(err, command.ErrMembershipDecisionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *MembershipHandler) handleList(c requestContext) error {
	if h.list == nil {
		return fail(c, http.StatusServiceUnavailable, types.ErrServiceNotReady.Error())
	}
	groupID, err := uuid.Parse(strings.TrimSpace(c.Param("id", "")))
	if err != nil {
		return fail(c, http.StatusBadRequest, MessageInvalidGroup)
	}
	filter := types.MembershipFilter{
		GroupID: groupID,
		Pagination: types.Pagination{
			Limit:  queryInt(c, "limit"),
			Offset: queryInt(c, "offset"),
		},
	}
	if raw := strings.TrimSpace(c.Query("status", "")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				filter.Statuses = append(filter.Statuses, types.MembershipStatus(part))
			}
		}
	}

	page, err := h.list.Query(requestCtx(c), filter)
	if err != nil {
		h.logger.Error("membership listing failed", err, "group_id", groupID.String())
		return fail(c, http.StatusInternalServerError, "unable to list memberships")
	}
	views := make([]MembershipView, 0, len(page.Memberships))
	for _, m := range page.Memberships {
		views = append(views, newMembershipView(m))
	}
	return c.JSON(http.StatusOK, MembershipListResponse{
		OK:          true,
		Memberships: views,
		Total:       page.Total,
		NextOffset:  page.NextOffset,
		HasMore:     page.HasMore,
	})
}

func (h *MembershipHandler) handleStats(c requestContext) error {
	if h.stats == nil {
		return fail(c, http.StatusServiceUnavailable, types.ErrServiceNotReady.Error())
	}
	groupID, err := uuid.Parse(strings.TrimSpace(c.Param("id", "")))
	if err != nil {
		return fail(c, http.StatusBadRequest, MessageInvalidGroup)
	}
	filter := types.ActivityStatsFilter{GroupID: groupID}
	if raw := strings.TrimSpace(c.Query("since", "")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fail(c, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		}
		filter.Since = &since
	}

	stats, err := h.stats.Query(requestCtx(c), filter)
	if err != nil {
		h.logger.Error("group stats failed", err, "group_id", groupID.String())
		return fail(c, http.StatusInternalServerError, "unable to load group stats")
	}
	byVerb := stats.ByVerb
	if byVerb == nil {
		byVerb = map[string]int{}
	}
	return c.JSON(http.StatusOK, GroupStatsResponse{OK: true, Total: stats.Total, ByVerb: byVerb})
}

func newMembershipView(m types.Membership) MembershipView {
	return MembershipView{
		ID:            m.ID.String(),
		GroupID:       m.GroupID.String(),
		UserID:        m.UserID.String(),
		Role:          m.Role,
		Status:        string(m.Status),
		ReferralID:    uuidString(m.ReferralID),
		JourneyStatus: m.JourneyStatus,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
