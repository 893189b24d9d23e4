package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// requestContext is the slice of router.Context the handlers rely on.
type requestContext interface {
	Method() string
	Body() []byte
	Context() context.Context
	Param(name string, defaultValue ...string) string
	Query(name string, defaultValue ...string) string
	JSON(code int, v any) error
}

// ErrorResponse is the body returned for hard failures.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func fail(c requestContext, status int, message string) error {
	return c.JSON(status, ErrorResponse{OK: false, Error: message})
}

// failOK reports a logical failure while keeping the transport status at 200.
func failOK(c requestContext, message string) error {
	return fail(c, http.StatusOK, message)
}

func requestCtx(c requestContext) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseOptionalUUID returns uuid.Nil for blank input.
func parseOptionalUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func queryInt(c requestContext, key string) int {
	raw := strings.TrimSpace(c.Query(key, ""))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

func uuidString(id *uuid.UUID) *string {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	s := id.String()
	return &s
}
