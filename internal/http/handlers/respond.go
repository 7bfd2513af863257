package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody is the error payload returned by every endpoint.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func jsonError(w http.ResponseWriter, code string, status int) {
	writeJSON(w, status, errorBody{Error: code})
}
