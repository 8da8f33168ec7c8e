package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"rallysphere/internal/apperr"
	"time"
)

type APIResponse struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	Data      interface{}         `json:"data,omitempty"`
	Error     string              `json:"error,omitempty"`
	Fields    []apperr.FieldError `json:"fields,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// Localizer renders a message key for the caller's Accept-Language.
type Localizer interface {
	T(locale, key string, data map[string]any) string
}

func WriteJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteSuccess sends data with a localized status message.
func WriteSuccess(w http.ResponseWriter, r *http.Request, tr Localizer, status int, key string, tmpl map[string]any, data any) error {
	return WriteJSON(w, status, SuccessResponse(tr.T(r.Header.Get("Accept-Language"), key, tmpl), data))
}

// WriteError maps err to its status and localized alert. Details of server
// side failures stay out of the response body.
func WriteError(w http.ResponseWriter, r *http.Request, tr Localizer, err error) error {
	status := apperr.Status(err)
	resp := ErrorResponse(tr.T(r.Header.Get("Accept-Language"), apperr.MessageKey(err), nil), err.Error())
	if status >= http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
	}
	var invalid *apperr.ValidationError
	if errors.As(err, &invalid) {
		resp.Fields = invalid.Fields
	}
	return WriteJSON(w, status, resp)
}
