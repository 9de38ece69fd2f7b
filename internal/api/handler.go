package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/weatherbot/internal/dispatch"
	"github.com/nidhogg/weatherbot/internal/gateway"
	"github.com/nidhogg/weatherbot/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// FeedbackLister reads archived feedback.
type FeedbackLister interface {
	ListFeedback(ctx context.Context, limit int) ([]store.Feedback, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine   *dispatch.Engine
	gw       *gateway.Gateway
	restGW   *gateway.RESTAdapter
	feedback FeedbackLister
	version  string
	logger   *zap.Logger
}

// NewHandler creates a new API handler. restGW and feedback may be nil.
func NewHandler(
	engine *dispatch.Engine,
	gw *gateway.Gateway,
	restGW *gateway.RESTAdapter,
	feedback FeedbackLister,
	version string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		engine:   engine,
		gw:       gw,
		restGW:   restGW,
		feedback: feedback,
		version:  version,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/commands", h.listCommands)
		r.Get("/help", h.helpText)
		r.Get("/pending", h.listPending)
		r.Get("/feedback", h.listFeedback)

		// Gateway routes
		r.Get("/adapters", h.listAdapters)
		r.Get("/gateway/status", h.gatewayStatus)
		if h.restGW != nil {
			r.Mount("/gateway/rest", h.restGW.Routes())
		}
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
}

type commandInfo struct {
	Name          string `json:"name"`
	Usage         string `json:"usage"`
	TakesArgument bool   `json:"takes_argument"`
	Description   string `json:"description"`
}

func (h *Handler) listCommands(w http.ResponseWriter, r *http.Request) {
	defs := h.engine.Registry().Describe()
	out := make([]commandInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, commandInfo{
			Name:          d.Name,
			Usage:         d.Usage(),
			TakesArgument: d.TakesArgument,
			Description:   d.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) helpText(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"text": h.engine.HelpText()})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Tracker().Snapshot())
}

func (h *Handler) listFeedback(w http.ResponseWriter, r *http.Request) {
	if h.feedback == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "feedback archive not configured"})
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	items, err := h.feedback.ListFeedback(r.Context(), limit)
	if err != nil {
		h.logger.Error("list feedback failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if items == nil {
		items = []store.Feedback{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) listAdapters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.Adapters())
}

func (h *Handler) gatewayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gw.StatusAll())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
