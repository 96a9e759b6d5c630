package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
)

func WriteJSON(w http.ResponseWriter, v any) {
	WriteJSONStatus(w, http.StatusOK, v)
}

func WriteJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRawJSON writes an already encoded body untouched.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError renders err with the status from apperrors.HTTPStatus. Internal errors do not
// leak their message.
func WriteError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "2")
	}
	WriteJSONStatus(w, status, errorBody{Error: apperrors.Code(err), Message: msg})
}

// AddServerTiming appends name;dur=ms pairs to the Server-Timing header.
func AddServerTiming(w http.ResponseWriter, name string, d time.Duration) {
	w.Header().Add("Server-Timing", fmt.Sprintf("%s;dur=%.1f", name, float64(d.Microseconds())/1000))
}
