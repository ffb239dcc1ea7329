package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const storagePingTimeout = 2 * time.Second

// Pinger is a storage backend that can check its connection.
// Satisfied by *storage.Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checkout bool
	storage  Pinger
}

// NewHealthHandler reports checkout availability and, when storage is a
// Pinger, whether it is reachable.
func NewHealthHandler(checkoutEnabled bool, storage any) *HealthHandler {
	h := &HealthHandler{checkout: checkoutEnabled}
	if p, ok := storage.(Pinger); ok {
		h.storage = p
	}
	return h
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
}

type healthResponse struct {
	Status   string `json:"status"`
	Checkout bool   `json:"checkout"`
	Storage  string `json:"storage,omitempty"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checkout: h.checkout}
	if h.storage == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), storagePingTimeout)
	defer cancel()
	if err := h.storage.Ping(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("storage ping failed")
		resp.Status = "degraded"
		resp.Storage = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Storage = "ok"
	writeJSON(w, http.StatusOK, resp)
}
