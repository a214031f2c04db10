// Package http exposes the leaderboard service over REST plus a websocket
// feed for live dashboard updates.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"quiz-leaderboard/internal/app"
	"quiz-leaderboard/internal/domain"
)

type Handler struct {
	service *app.Service
}

func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

type submitRequest struct {
	Name     string `json:"name"`
	Endpoint string `json:"api_endpoint"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type leaderboardResponse struct {
	Submissions    []domain.Submission `json:"submissions"`
	TotalQuestions int                 `json:"total_questions"`
}

type progressResponse struct {
	Submission     domain.Submission    `json:"submission"`
	TotalQuestions int                  `json:"total_questions"`
	Results        []domain.ResultEntry `json:"results"`
}

// Submit registers a new submission and kicks off its quiz run.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Endpoint = strings.TrimSpace(req.Endpoint)
	if req.Name == "" || req.Endpoint == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorPayload{Message: "name and api_endpoint are required"})
		return
	}

	switch err := h.service.Submit(r.Context(), req.Name, req.Endpoint); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": string(domain.StatusProcessing)})
	case errors.Is(err, domain.ErrDuplicateSubmission):
		writeJSON(w, http.StatusConflict, errorPayload{Message: "submission already exists for this name and endpoint"})
	case errors.Is(err, domain.ErrStoreBusy):
		writeJSON(w, http.StatusServiceUnavailable, errorPayload{Message: "leaderboard is busy, try again"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
	}
}

// Leaderboard returns the current submission table.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Leaderboard(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Submissions:    rows,
		TotalQuestions: h.service.TotalQuestions(),
	})
}

// Progress returns one submission's row and its per-question log.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	endpoint := r.URL.Query().Get("endpoint")
	if name == "" || endpoint == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "name and endpoint query parameters are required"})
		return
	}

	row, results, err := h.service.Progress(r.Context(), name, endpoint)
	if errors.Is(err, domain.ErrSubmissionNotFound) {
		writeJSON(w, http.StatusNotFound, errorPayload{Message: "submission not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorPayload{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		Submission:     row,
		TotalQuestions: h.service.TotalQuestions(),
		Results:        results,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
