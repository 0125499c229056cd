package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"lineplan/internal/affinity"
	"lineplan/internal/assign"
	"lineplan/internal/planner"
	"lineplan/internal/routing"
	"lineplan/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, routing.ErrNoSolution):
		return http.StatusUnprocessableEntity, "No Solution"
	case errors.Is(err, assign.ErrInvalidLineCount),
		errors.Is(err, assign.ErrUnknownStrategy),
		errors.Is(err, planner.ErrUnknownMode),
		errors.Is(err, planner.ErrNoRecords),
		errors.Is(err, affinity.ErrInvalidMatrix):
		return http.StatusBadRequest, "Invalid Request"
	}
	return http.StatusInternalServerError, "Planning Failed"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := errorStatus(err)
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}
