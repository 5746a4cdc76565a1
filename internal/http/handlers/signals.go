package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beside/server/internal/ledger"
	"github.com/beside/server/internal/middleware"
	"github.com/beside/server/internal/model"
	"github.com/beside/server/internal/proximity"
	"github.com/beside/server/internal/signal"
	"github.com/beside/server/internal/stats"
)

// SignalHandler handles the signal, response and statistics endpoints.
type SignalHandler struct {
	signals         *signal.Service
	ledger          *ledger.Service
	engine          *proximity.Engine
	stats           *stats.Service
	defaultRadiusKM float64
	maxRadiusKM     float64
	logger          *logrus.Logger
}

// NewSignalHandler creates a new signal handler.
func NewSignalHandler(
	signals *signal.Service,
	ledgerSvc *ledger.Service,
	engine *proximity.Engine,
	statsSvc *stats.Service,
	defaultRadiusKM, maxRadiusKM float64,
	logger *logrus.Logger,
) *SignalHandler {
	return &SignalHandler{
		signals:         signals,
		ledger:          ledgerSvc,
		engine:          engine,
		stats:           statsSvc,
		defaultRadiusKM: defaultRadiusKM,
		maxRadiusKM:     maxRadiusKM,
		logger:          logger,
	}
}

// signalPayload is the signal object in API responses.
type signalPayload struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	Intensity     *int       `json:"intensity,omitempty"`
	Status        string     `json:"status"`
	ResponseCount int        `json:"response_count"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toSignalPayload(s model.Signal, responseCount int) signalPayload {
	return signalPayload{
		ID:            s.ID.String(),
		UserID:        s.UserID.String(),
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		Intensity:     s.Intensity,
		Status:        s.Status,
		ResponseCount: responseCount,
		CreatedAt:     s.CreatedAt,
		ExpiresAt:     s.ExpiresAt,
		RespondedAt:   s.RespondedAt,
		CancelledAt:   s.CancelledAt,
	}
}

type createSignalRequest struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Intensity *int     `json:"intensity,omitempty"`
}

// HandleCreate handles POST /api/v1/signals.
func (h *SignalHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// The client may send an empty object when relying on the cached location.
	var req createSignalRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sig, err := h.signals.Create(r.Context(), userID, signal.CreateInput{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Intensity: req.Intensity,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusCreated, toSignalPayload(sig, 0))
}

// HandleNearby handles GET /api/v1/signals/nearby. Public, but an optional
// bearer token excludes the caller's own signals from the results.
func (h *SignalHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "latitude is required")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "longitude is required")
		return
	}

	radius := h.defaultRadiusKM
	if raw := q.Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			respondError(w, http.StatusBadRequest, "radius must be a positive number")
			return
		}
	}
	if radius > h.maxRadiusKM {
		radius = h.maxRadiusKM
	}

	excludeUser := uuid.Nil
	if userID, ok := middleware.GetUserID(r.Context()); ok {
		excludeUser = userID
	}

	views, err := h.engine.Nearby(r.Context(), lat, lon, radius, excludeUser)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, views)
}

type respondRequest struct {
	Message string `json:"message,omitempty"`
}

// HandleRespond handles POST /api/v1/signals/{id}/respond.
func (h *SignalHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	signalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	var req respondRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	resp, err := h.ledger.Respond(r.Context(), userID, signalID, req.Message)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusCreated, map[string]any{
		"id":           resp.ID.String(),
		"signal_id":    resp.SignalID.String(),
		"responder_id": resp.ResponderID.String(),
		"message":      resp.Message,
		"created_at":   resp.CreatedAt,
	})
}

// HandleCancel handles DELETE /api/v1/signals/{id}.
func (h *SignalHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	signalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid signal id")
		return
	}

	if err := h.signals.Cancel(r.Context(), userID, signalID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, "signal cancelled")
}

// HandleMySignals handles GET /api/v1/signals/my.
func (h *SignalHandler) HandleMySignals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	signals, err := h.signals.MySignals(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	payload := make([]signalPayload, len(signals))
	for i, s := range signals {
		payload[i] = toSignalPayload(s.Signal, s.ResponseCount)
	}
	respondData(w, http.StatusOK, payload)
}

// HandleMyResponses handles GET /api/v1/signals/responses. Returns the full
// unacknowledged backlog newest first; the client shows only the most recent.
func (h *SignalHandler) HandleMyResponses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	views, err := h.ledger.MyResponses(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, views)
}

// HandleThank handles PUT /api/v1/signals/responses/{id}/thank.
func (h *SignalHandler) HandleThank(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	responseID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid response id")
		return
	}

	if err := h.ledger.MarkThanked(r.Context(), userID, responseID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondMessage(w, http.StatusOK, "response acknowledged")
}

// HandleStatistics handles GET /api/v1/signals/statistics.
func (h *SignalHandler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	statistics, err := h.stats.ForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondData(w, http.StatusOK, statistics)
}
