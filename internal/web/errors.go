package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail server-side and
// returned to the client as a user-friendly JSON message with a code:
//
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. Error is mapped via tablemgr.MapError and statusFor
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is written as JSON

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/tablemgr/internal/logging"
	"github.com/JonMunkholm/tablemgr/internal/tablemgr"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// requestError is a client mistake detected by a handler before any
// table operation runs.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{status: http.StatusBadRequest, msg: msg}
}

func notFound(msg string) error {
	return &requestError{status: http.StatusNotFound, msg: msg}
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var reqErr *requestError
	if errors.As(err, &reqErr) {
		logging.FromContext(r.Context()).Warn("request rejected",
			"path", r.URL.Path,
			"method", r.Method,
			"status", status,
			"error", err.Error(),
		)
		writeJSON(w, status, ErrorResponse{Error: reqErr.msg, Message: reqErr.msg, Code: "REQ000"})
		return
	}

	if errors.Is(err, ErrTooManyBatches) {
		logging.FromContext(r.Context()).Warn("batch rejected",
			"path", r.URL.Path,
			"method", r.Method,
			"limiter", s.limiter.Status(),
		)
		writeJSON(w, status, ErrorResponse{
			Error:   "Server busy",
			Message: err.Error(),
			Action:  "Retry after a few seconds.",
			Code:    "BUSY001",
		})
		return
	}

	userMsg := tablemgr.MapError(err)
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	writeJSON(w, status, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor chooses the HTTP status for err.
func statusFor(err error) int {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status
	}
	if errors.Is(err, ErrTooManyBatches) {
		return http.StatusTooManyRequests
	}

	switch tablemgr.ErrorCode(err) {
	case "KEY001":
		return http.StatusBadRequest
	case "DB001", "DB003":
		return http.StatusConflict
	case "DB002":
		return http.StatusUnprocessableEntity
	case "DB004", "DB005":
		return http.StatusServiceUnavailable
	case "DB006":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
