package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wadatrip/farewatch/internal/monitor"
	"github.com/wadatrip/farewatch/internal/notify"
	"github.com/wadatrip/farewatch/internal/store"
)

// DefaultMaxWaitHours applies when a create request omits max_wait_hours.
const DefaultMaxWaitHours = 168

// MonitorService is the subset of the scheduler the handlers use.
type MonitorService interface {
	CreateMonitor(ctx context.Context, params monitor.Params) string
	CheckNow(ctx context.Context, id string)
	CancelMonitor(ctx context.Context, id string) bool
	ListActiveMonitors() []store.Monitor
	GetMonitor(id string) (store.Monitor, error)
}

type Handlers struct {
	monitors     MonitorService
	advisor      monitor.Estimator
	webhookHosts []string
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithWebhookHosts sets the hosts a contact webhook may point at.
func WithWebhookHosts(hosts []string) HandlerOption {
	return func(h *Handlers) { h.webhookHosts = hosts }
}

func NewHandlers(monitors MonitorService, advisor monitor.Estimator, opts ...HandlerOption) *Handlers {
	h := &Handlers{monitors: monitors, advisor: advisor, webhookHosts: notify.DefaultWebhookHosts}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type createMonitorRequest struct {
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	DepartureDate string        `json:"departure_date"`
	Budget        float64       `json:"budget"`
	MaxWaitHours  *float64      `json:"max_wait_hours"`
	Contact       store.Contact `json:"contact"`
}

func (req createMonitorRequest) validate(webhookHosts []string) error {
	if strings.TrimSpace(req.Origin) == "" || strings.TrimSpace(req.Destination) == "" {
		return errors.New("origin and destination are required")
	}
	if req.Budget <= 0 {
		return errors.New("budget must be greater than zero")
	}
	if req.MaxWaitHours != nil && (*req.MaxWaitHours < 0 || *req.MaxWaitHours > monitor.MaxWaitHours) {
		return errors.New("max_wait_hours must be between 0 and " + strconv.FormatFloat(monitor.MaxWaitHours, 'f', 0, 64))
	}
	if req.Contact.WebhookURL != "" {
		if err := notify.CheckWebhookURL(req.Contact.WebhookURL, webhookHosts); err != nil {
			return fmt.Errorf("contact.webhook_url: %w", err)
		}
	}
	return nil
}

func (h *Handlers) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(h.webhookHosts); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	maxWait := float64(DefaultMaxWaitHours)
	if req.MaxWaitHours != nil {
		maxWait = *req.MaxWaitHours
	}

	id := h.monitors.CreateMonitor(r.Context(), monitor.Params{
		Route: store.Route{
			Origin:      strings.TrimSpace(req.Origin),
			Destination: strings.TrimSpace(req.Destination),
		},
		DepartureDate: parseDate(req.DepartureDate),
		Budget:        req.Budget,
		MaxWaitHours:  maxWait,
		Contact:       req.Contact,
	})
	if id == "" {
		writeError(w, http.StatusServiceUnavailable, "scheduler is shutting down")
		return
	}

	m, err := h.monitors.GetMonitor(id)
	if err != nil {
		// Created and cancelled before we could read it back.
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListMonitors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"monitors": h.monitors.ListActiveMonitors()})
}

func (h *Handlers) GetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.monitors.GetMonitor(chi.URLParam(r, "id"))
	if errors.Is(err, monitor.ErrMonitorNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) CancelMonitor(w http.ResponseWriter, r *http.Request) {
	if !h.monitors.CancelMonitor(r.Context(), chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "monitor not found or not active")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) CheckMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.monitors.GetMonitor(id); err != nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	h.monitors.CheckNow(r.Context(), id)

	m, err := h.monitors.GetMonitor(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type adviceRequest struct {
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	DepartureDate string  `json:"departure_date"`
	Budget        float64 `json:"budget"`
}

func (h *Handlers) GetAdvice(w http.ResponseWriter, r *http.Request) {
	var req adviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	advice := h.advisor.Estimate(store.QuoteRequest{
		Origin:        req.Origin,
		Destination:   req.Destination,
		DepartureDate: parseDate(req.DepartureDate),
		Budget:        req.Budget,
	})
	writeJSON(w, http.StatusOK, advice)
}

// parseDate accepts YYYY-MM-DD or RFC3339. Anything else is treated as absent.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
