package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON body of every error response written by SPlugin.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

// WriteError writes an ErrorBody with the given status code.
// The error field carries the standard status text.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorBody{
		Error:      http.StatusText(statusCode),
		Message:    message,
		StatusCode: statusCode,
	})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		statusCode = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error","message":"failed to encode response","statusCode":500}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}
