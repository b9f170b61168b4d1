// Package httpapi exposes the receipt REST API and the realtime
// websocket endpoint. It maps internal errors onto the wire contract:
// 404 for unknown ids/tokens, 400 for malformed input, 403 with a stable
// code for IP-gate denials, 500 with a generic message for store faults.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tabsync/tabsync/internal/metrics"
	"github.com/tabsync/tabsync/internal/middleware"
	"github.com/tabsync/tabsync/internal/models"
	"github.com/tabsync/tabsync/internal/security"
	"github.com/tabsync/tabsync/internal/service"
	"github.com/tabsync/tabsync/internal/storage"
)

// Server wires the receipt service, the relay hub and the access gates
// into one HTTP handler.
type Server struct {
	service    *service.ReceiptService
	relay      http.Handler
	allowlist  *security.Allowlist
	corsOrigin string
}

// NewServer creates the API server. relay handles the websocket
// endpoint; a nil relay disables it.
func NewServer(svc *service.ReceiptService, relay http.Handler, allowlist *security.Allowlist, corsOrigin string) *Server {
	return &Server{
		service:    svc,
		relay:      relay,
		allowlist:  allowlist,
		corsOrigin: corsOrigin,
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(s.corsOrigin))

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api/receipts", func(r chi.Router) {
		r.Use(security.Harden)

		// Read-only and unauthenticated by design.
		r.Get("/", s.handleList)

		r.With(s.requireOwnerIP).Post("/", s.handleCreate)

		r.Route("/share/{token}", func(r chi.Router) {
			r.Use(s.requireValidToken)
			r.Get("/", s.handleGetByToken)
			r.Put("/", s.handleUpdateByToken)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Use(s.requireOwnerIP)
			r.Get("/", s.handleGet)
			r.Put("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
		})
	})

	if s.relay != nil {
		r.Get("/api/websocket", s.relay.ServeHTTP)
	}
	r.Handle("/metrics", metrics.Handler())

	return r
}

// requireOwnerIP permits the request only when the caller's address
// exact-matches the allowlist. The 403 payload is fixed regardless of
// which operation was attempted.
func (s *Server) requireOwnerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := security.ClientIP(r)
		if !s.allowlist.Allowed(ip) {
			slog.Warn("Owner-path request denied", "ip", ip, "path", r.URL.Path)
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Access denied. Receipt creation is restricted to authorized IP addresses.",
				"code":  "IP_RESTRICTED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireValidToken rejects structurally invalid share tokens before any
// store lookup. Token possession is the only credential on this path; no
// address restriction applies.
func (s *Server) requireValidToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !security.ValidAccessToken(chi.URLParam(r, "token")) {
			writeError(w, http.StatusBadRequest, "Invalid access token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	receipt, err := s.service.CreateReceipt(r.Context(), input)
	if errors.Is(err, service.ErrNameRequired) {
		writeError(w, http.StatusBadRequest, "Receipt name is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create receipt")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	receipts, err := s.service.ListReceipts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch receipts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err, "Failed to fetch receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var fields models.ReceiptFields
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	receipt, err := s.service.UpdateReceipt(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		s.writeLookupError(w, err, "Failed to update receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeLookupError(w, err, "Failed to delete receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleGetByToken(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceiptByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeLookupError(w, err, "Failed to fetch receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

func (s *Server) handleUpdateByToken(w http.ResponseWriter, r *http.Request) {
	var fields models.ReceiptFields
	if err := decodeBody(r, &fields); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	receipt, err := s.service.UpdateReceiptByToken(r.Context(), chi.URLParam(r, "token"), fields)
	if err != nil {
		s.writeLookupError(w, err, "Failed to update receipt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

// writeLookupError maps ErrNotFound to the generic 404; everything else
// is a store fault whose detail is logged, never returned.
func (s *Server) writeLookupError(w http.ResponseWriter, err error, genericMessage string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	slog.Error(genericMessage, "error", err)
	writeError(w, http.StatusInternalServerError, genericMessage)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
