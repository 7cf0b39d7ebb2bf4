// Package web exposes the sync subsystem over HTTP: trigger a sync, list
// synced reviews with a rating distribution, and inspect integration
// status. Authentication is assumed to happen upstream; the owner id comes
// from the URL.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/openfeedback/review-sync/models"
	"github.com/openfeedback/review-sync/pkg/encryption"
	"github.com/openfeedback/review-sync/syncer"
)

// Syncer is implemented by syncer.Engine.
type Syncer interface {
	Sync(ctx context.Context, ownerID string, platforms []string, opts syncer.Options) (*syncer.Result, error)
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Server struct {
	syncer       Syncer
	integrations models.IntegrationRepository
	reviews      models.ReviewRepository
	logger       *zap.Logger
	router       *mux.Router
}

func New(s Syncer, integrations models.IntegrationRepository, reviews models.ReviewRepository, logger *zap.Logger) *Server {
	srv := &Server{
		syncer:       s,
		integrations: integrations,
		reviews:      reviews,
		logger:       logger,
		router:       mux.NewRouter(),
	}

	srv.routes()

	return srv
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/owners/{ownerID}/reviews/sync", s.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/owners/{ownerID}/reviews", s.handleListReviews).Methods(http.MethodGet)
	api.HandleFunc("/owners/{ownerID}/integrations", s.handleListIntegrations).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type syncRequest struct {
	Platforms []string       `json:"platforms"`
	Options   syncer.Options `json:"options"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["ownerID"]

	var req syncRequest

	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderJSON(w, http.StatusUnprocessableEntity, APIError{Code: http.StatusUnprocessableEntity, Message: err.Error()})

			return
		}
	}

	result, err := s.syncer.Sync(r.Context(), ownerID, req.Platforms, req.Options)
	if err != nil {
		s.renderSyncError(w, ownerID, err)

		return
	}

	renderJSON(w, http.StatusOK, result)
}

func (s *Server) renderSyncError(w http.ResponseWriter, ownerID string, err error) {
	switch {
	case errors.Is(err, models.ErrEntitlementRequired):
		renderJSON(w, http.StatusPaymentRequired, APIError{
			Code:    http.StatusPaymentRequired,
			Message: "current plan does not include review sync",
		})
	case errors.Is(err, encryption.ErrCorruptCredential):
		s.logger.Error("stored credential is corrupt", zap.String("owner_id", ownerID))
		renderJSON(w, http.StatusConflict, APIError{
			Code:    http.StatusConflict,
			Message: "stored credentials are unreadable, please reconnect the integration",
		})
	default:
		s.logger.Error("sync failed", zap.String("owner_id", ownerID), zap.Error(err))
		renderJSON(w, http.StatusInternalServerError, APIError{
			Code:    http.StatusInternalServerError,
			Message: err.Error(),
		})
	}
}

type reviewsResponse struct {
	Reviews      []models.Review `json:"reviews"`
	Total        int             `json:"total"`
	Distribution map[int]int     `json:"distribution"`
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["ownerID"]

	reviews, err := s.reviews.SelectByOwner(r.Context(), ownerID)
	if err != nil {
		renderJSON(w, http.StatusInternalServerError, APIError{Code: http.StatusInternalServerError, Message: err.Error()})

		return
	}

	distribution, err := s.reviews.CountByRating(r.Context(), ownerID)
	if err != nil {
		renderJSON(w, http.StatusInternalServerError, APIError{Code: http.StatusInternalServerError, Message: err.Error()})

		return
	}

	if reviews == nil {
		reviews = []models.Review{}
	}

	renderJSON(w, http.StatusOK, reviewsResponse{
		Reviews:      reviews,
		Total:        len(reviews),
		Distribution: distribution,
	})
}

// integrationStatus is the redacted integration view. Token ciphertext
// never leaves the server.
type integrationStatus struct {
	Platform     string    `json:"platform"`
	Status       string    `json:"status"`
	Connected    bool      `json:"connected"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	ownerID := mux.Vars(r)["ownerID"]

	integrations, err := s.integrations.SelectByOwner(r.Context(), ownerID)
	if err != nil {
		renderJSON(w, http.StatusInternalServerError, APIError{Code: http.StatusInternalServerError, Message: err.Error()})

		return
	}

	ans := make([]integrationStatus, 0, len(integrations))

	for _, integration := range integrations {
		ans = append(ans, integrationStatus{
			Platform:     integration.Platform,
			Status:       integration.Status,
			Connected:    integration.Active(),
			LastSyncedAt: integration.LastSyncedAt,
			Expiry:       integration.Expiry,
		})
	}

	renderJSON(w, http.StatusOK, ans)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func renderJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
