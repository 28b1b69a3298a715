package server

import (
	goerrors "errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-tenantdb/logger"
)

// APIError is an error with a stable code and HTTP status.
type APIError struct {
	Code       string
	Message    string
	HTTPStatus int
}

// NewAPIError creates an API error.
func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// NewServiceUnavailableError creates a 503 error.
func NewServiceUnavailableError(message string) *APIError {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return NewAPIError("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable)
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error ErrorBody    `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorBody describes the failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta correlates a response with logs.
type ResponseMeta struct {
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}

// errorHandler renders errors as ErrorResponse. Internal details of 5xx
// responses are only exposed in development.
func errorHandler(log logger.Logger, development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		code := ""
		msg := "Internal server error"

		var apiErr *APIError
		var he *echo.HTTPError
		switch {
		case goerrors.As(err, &apiErr):
			status, code, msg = apiErr.HTTPStatus, apiErr.Code, apiErr.Message
		case goerrors.As(err, &he):
			status = he.Code
			switch m := he.Message.(type) {
			case string:
				msg = m
			case error:
				msg = m.Error()
			}
		}
		if code == "" {
			code = statusToErrorCode(status)
		}

		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("request_id", requestID(c)).Msg("Unhandled error")
			if !development && apiErr == nil {
				msg = "An error occurred while processing your request"
			}
		}

		body := ErrorResponse{
			Error: ErrorBody{Code: code, Message: msg},
			Meta: ResponseMeta{
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				RequestID: requestID(c),
			},
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}
