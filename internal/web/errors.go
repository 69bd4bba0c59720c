package web

// errors.go centralizes JSON error responses. Technical errors are
// logged with full detail; clients receive the translated user-facing
// message and action.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/forceadmin/bulkops/internal/core"
	"github.com/forceadmin/bulkops/internal/logging"
)

// ErrorResponse is the JSON shape of every error the API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.UserFacingMessage(err.Error())

	logger := logging.FromContext(r.Context())
	logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", msg.Code,
		"error", err,
	)

	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
