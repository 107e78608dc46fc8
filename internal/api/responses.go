package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

// Meta carries per-request bookkeeping on every envelope.
type Meta struct {
	ProcessingTime string `json:"processingTime"`
	RequestID      string `json:"requestId"`
}

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Envelope is the uniform response shape: success with data, or failure
// with a coded error. Meta is always present.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    Meta       `json:"meta"`
}

func (s *Server) respond(c echo.Context, status int, data any, started time.Time) error {
	return c.JSON(status, Envelope{
		Success: true,
		Data:    data,
		Meta:    buildMeta(c, started),
	})
}

// respondError maps the error taxonomy to HTTP statuses. Anything that
// is not an AppError is treated as internal and its message hidden.
func (s *Server) respondError(c echo.Context, err error, started time.Time) error {
	appErr, ok := types.AsAppError(err)
	if !ok {
		s.logger.WithError(err).Error("unclassified error")
		appErr = types.NewAppError(types.CodeInternal, "internal server error", nil)
	}

	if appErr.Code == types.CodeInternal || appErr.Code == types.CodeStorage {
		s.logger.WithError(err).Error("request failed")
	}

	return c.JSON(appErr.Code.HTTPStatus(), Envelope{
		Success: false,
		Error: &ErrorBody{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Meta: buildMeta(c, started),
	})
}

func (s *Server) respondValidation(c echo.Context, message string, started time.Time) error {
	return c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: string(types.CodeValidation), Message: message},
		Meta:    buildMeta(c, started),
	})
}

func buildMeta(c echo.Context, started time.Time) Meta {
	return Meta{
		ProcessingTime: fmt.Sprintf("%dms", time.Since(started).Milliseconds()),
		RequestID:      c.Response().Header().Get(echo.HeaderXRequestID),
	}
}
