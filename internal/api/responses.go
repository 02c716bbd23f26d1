package api

import (
	"encoding/json"
	"net/http"
	"time"

	"simplepaes/pkg/interfaces"
	"simplepaes/pkg/types"
)

type SessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

type ListSessionsResponse struct {
	Sessions []*types.Session `json:"sessions"`
}

type StatusUpdateResponse struct {
	Transitions []types.Transition `json:"transitions"`
}

type SetStatusRequest struct {
	Status types.SessionStatus `json:"status"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusForResult maps a Result code onto an HTTP status
func statusForResult(result interfaces.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Code {
	case interfaces.CodeNotFound:
		return http.StatusNotFound
	case interfaces.CodeInvalidState,
		interfaces.CodeAlreadyRegistered,
		interfaces.CodeNotRegistered,
		interfaces.CodeNotParticipant:
		return http.StatusConflict
	case interfaces.CodeValidation:
		return http.StatusBadRequest
	case interfaces.CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError writes the consistent error body
func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func sendResult(w http.ResponseWriter, result interfaces.Result) {
	writeJSON(w, statusForResult(result), result)
}
