package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/coop-bridge/internal/hub"
)

// REST error codes. Unknown devices share the code observers receive
// over the WebSocket.
const (
	ErrCodeUnknownDevice = hub.CodeUnknownDevice
	ErrCodeInvalidParam  = "invalid_parameter"
	ErrCodeInternal      = "internal_error"
)

// Error is the body of every non-2xx response:
//
//	{"error":{"code":"unknown_device","message":"...","target":"gate","request_id":"..."}}
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Target    string `json:"target,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error Error `json:"error"`
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes e under status, stamped with the request's id.
func writeError(w http.ResponseWriter, r *http.Request, status int, e Error) {
	if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
		e.RequestID = id
	}
	writeJSON(w, status, errorEnvelope{Error: e})
}

func writeUnknownDevice(w http.ResponseWriter, r *http.Request, key string) {
	writeError(w, r, http.StatusNotFound, Error{Code: ErrCodeUnknownDevice, Message: "device not found", Target: key})
}

func writeInvalidParam(w http.ResponseWriter, r *http.Request, param, message string) {
	writeError(w, r, http.StatusBadRequest, Error{Code: ErrCodeInvalidParam, Message: message, Target: param})
}

func writeInternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusInternalServerError, Error{Code: ErrCodeInternal, Message: message})
}
