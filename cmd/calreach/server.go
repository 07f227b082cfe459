package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"calreach/internal/constants"
	"calreach/internal/httputil"
	"calreach/internal/middleware"
	"calreach/internal/models"
	"calreach/internal/service"
	"calreach/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router      *mux.Router
	logger      *logrus.Logger
	cfg         *models.Config
	campaigns   *service.CampaignService
	dispatcher  *service.Dispatcher
	accounts    *service.AccountTracker
	responses   *service.ResponseTracker
	rateLimiter *RateLimiter
	server      *http.Server
}

func NewServer(cfg *models.Config, campaigns *service.CampaignService, dispatcher *service.Dispatcher, accounts *service.AccountTracker, responses *service.ResponseTracker, logger *logrus.Logger) *Server {
	rateLimit := cfg.Server.RateLimitPerMin
	if rateLimit <= 0 {
		rateLimit = constants.DefaultRateLimitPerMin
	}

	s := &Server{
		router:      mux.NewRouter(),
		logger:      logger,
		cfg:         cfg,
		campaigns:   campaigns,
		dispatcher:  dispatcher,
		accounts:    accounts,
		responses:   responses,
		rateLimiter: NewRateLimiter(rateLimit, time.Minute),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	// Health check
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	// Calendar provider webhook
	webhook := s.router.PathPrefix("/webhook/calendar").Subrouter()
	webhook.Use(middleware.WebhookObservabilityMiddleware(s.logger, "calendar"))
	webhook.HandleFunc("", s.handleCalendarWebhook()).Methods(http.MethodPost)

	// Campaign intake and control
	s.router.HandleFunc("/campaigns", s.handleEnqueueCampaign()).Methods(http.MethodPost)
	s.router.HandleFunc("/campaigns/{id}/cancel", s.handleCancelCampaign()).Methods(http.MethodPost)
	s.router.HandleFunc("/campaigns/{id}/rsvp-stats", s.handleRsvpStats()).Methods(http.MethodGet)

	// Dispatch control and status
	s.router.HandleFunc("/dispatch/active", s.handleSetDispatchActive()).Methods(http.MethodPost)
	s.router.HandleFunc("/queue/status", s.handleQueueStatus()).Methods(http.MethodGet)

	// Account pause/resume
	s.router.HandleFunc("/accounts/{id}/pause", s.handlePauseAccount()).Methods(http.MethodPost)
	s.router.HandleFunc("/accounts/{id}/resume", s.handleResumeAccount()).Methods(http.MethodPost)

	// Metrics
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port == "" {
		port = fmt.Sprintf("%d", constants.DefaultServerPort)
	}
	readTimeout := s.cfg.Server.ReadTimeoutSec
	if readTimeout <= 0 {
		readTimeout = constants.DefaultServerReadTimeoutSec
	}
	writeTimeout := s.cfg.Server.WriteTimeoutSec
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultServerWriteTimeoutSec
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %s", port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

func (s *Server) handleCalendarWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !s.rateLimiter.Allow(ip) {
			s.logger.WithField(service.LogFieldRemoteIP, ip).Warn("Webhook rate limit exceeded")
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxWebhookBodyBytes)
		body, err := verifySignature(r, s.cfg.Provider.WebhookSecret, "X-Webhook-Signature")
		if err != nil {
			requestInfo := tracing.GetRequestInfo(r.Context())
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestInfo.RequestID,
				service.LogFieldRemoteIP:  ip,
				"error":                   err.Error(),
			}).Warn("Webhook signature verification failed")
			s.writeError(w, http.StatusUnauthorized, "signature verification failed")
			return
		}

		if err := s.responses.ProcessWebhookEvent(r.Context(), body); err != nil {
			s.logger.WithError(err).Error("Failed to process webhook event")
			s.writeError(w, http.StatusBadRequest, "invalid webhook payload")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	}
}

func (s *Server) handleEnqueueCampaign() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxWebhookBodyBytes))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		var campaign models.Campaign
		if err := json.Unmarshal(body, &campaign); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid campaign payload")
			return
		}

		enqueued, err := s.campaigns.ProcessCampaign(r.Context(), &campaign)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldCampaignID: campaign.ID,
				"error":                    err.Error(),
			}).Warn("Campaign rejected")
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"campaignId": campaign.ID,
			"enqueued":   enqueued,
		})
	}
}

func (s *Server) handleCancelCampaign() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID := mux.Vars(r)["id"]
		cancelled, err := s.campaigns.CancelCampaign(r.Context(), campaignID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to cancel campaign")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"campaignId": campaignID,
			"cancelled":  cancelled,
		})
	}
}

func (s *Server) handleRsvpStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID := mux.Vars(r)["id"]
		stats, err := s.campaigns.GetCampaignRsvpStats(r.Context(), campaignID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to load campaign stats")
			return
		}

		s.writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) handleQueueStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.campaigns.GetQueueStatus(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to load queue status")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"dispatchActive": s.dispatcher.IsActive(),
			"queue":          status,
		})
	}
}

func (s *Server) handleSetDispatchActive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Active bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s.dispatcher.SetActive(req.Active)
		s.writeJSON(w, http.StatusOK, map[string]bool{"active": s.dispatcher.IsActive()})
	}
}

func (s *Server) handlePauseAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := mux.Vars(r)["id"]
		var req struct {
			Reason string `json:"reason"`
		}
		if r.Body != nil {
			// Reason is optional; ignore decode errors on an empty body.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		if err := s.accounts.Pause(r.Context(), accountID, req.Reason); err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to pause account")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"accountId": accountID, "state": "paused"})
	}
}

func (s *Server) handleResumeAccount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID := mux.Vars(r)["id"]
		if err := s.accounts.Resume(r.Context(), accountID); err != nil {
			s.writeError(w, http.StatusInternalServerError, "failed to resume account")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"accountId": accountID, "state": "active"})
	}
}
