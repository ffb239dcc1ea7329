package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/laundrypos/api/internal/auth"
	"github.com/rs/zerolog/log"
)

// PINVerifier checks terminal PINs. Satisfied by *auth.PINBook.
type PINVerifier interface {
	Verify(terminalID uuid.UUID, pin string) (string, error)
	Known(terminalID uuid.UUID) bool
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	pins      PINVerifier
	jwtSecret string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(pins PINVerifier, jwtSecret string) *AuthHandler {
	return &AuthHandler{pins: pins, jwtSecret: jwtSecret}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/terminal", h.TerminalLogin)
	r.Post("/auth/refresh", h.Refresh)
}

// --- Request / Response types ---

type terminalLoginRequest struct {
	TerminalID string `json:"terminal_id" validate:"required,uuid"`
	PIN        string `json:"pin" validate:"required,min=4,max=12"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TerminalID   uuid.UUID `json:"terminal_id"`
	Role         string    `json:"role"`
}

// --- Handlers ---

// TerminalLogin exchanges a terminal PIN for a token pair. The terminal's
// cashier PIN grants CASHIER; the manager PIN grants MANAGER.
func (h *AuthHandler) TerminalLogin(w http.ResponseWriter, r *http.Request) {
	var req terminalLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	terminalID := uuid.MustParse(req.TerminalID)
	role, err := h.pins.Verify(terminalID, req.PIN)
	if err != nil {
		if !errors.Is(err, auth.ErrUnknownTerminal) && !errors.Is(err, auth.ErrInvalidPIN) {
			log.Error().Err(err).Msg("verify pin")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.respondWithTokens(w, terminalID, role)
}

// Refresh exchanges a valid refresh token for a new access + refresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := auth.ValidateRefreshToken(h.jwtSecret, req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// A terminal removed from POS_TERMINAL_PINS loses its session on refresh.
	if !h.pins.Known(claims.TerminalID) {
		writeError(w, http.StatusUnauthorized, "terminal not found")
		return
	}

	h.respondWithTokens(w, claims.TerminalID, claims.Role)
}

// --- Helpers ---

func (h *AuthHandler) respondWithTokens(w http.ResponseWriter, terminalID uuid.UUID, role string) {
	accessToken, err := auth.GenerateToken(h.jwtSecret, terminalID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, terminalID, role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TerminalID:   terminalID,
		Role:         role,
	})
}
