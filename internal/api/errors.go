// SPDX-License-Identifier: MIT
package api

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the envelope for every non-2xx JSON body.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, code int, kind, detail string) {
	writeJSON(w, code, errorResponse{Error: kind, Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "")
}

func notFoundHandler(w http.ResponseWriter, _ *http.Request) {
	writeErrorResponse(w, http.StatusNotFound, "not_found", "")
}

func methodNotAllowedHandler(w http.ResponseWriter, _ *http.Request) {
	writeErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
}
