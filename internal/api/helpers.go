package api

import (
	"encoding/json"
	"net/http"

	"github.com/siteprobe/siteprobe/internal/middleware"
)

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendIndentedJSON sends a JSON response meant to be read by a person
func sendIndentedJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// sendError sends a standardized error response
func sendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	middleware.SendError(w, r, status, code, message, details)
}

// decodeJSON decodes and validates the request body
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var input T
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendError(w, r, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body", err.Error())
		return input, false
	}
	if err := validate.Struct(input); err != nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request", validationDetails(err))
		return input, false
	}
	return input, true
}
