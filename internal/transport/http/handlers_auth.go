package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ecotrace/internal/platform/middleware"
	"ecotrace/internal/registry"
	"ecotrace/pkg/domainerr"
)

type RegistryService interface {
	Register(ctx context.Context, walletAddress string, role registry.Role) (*registry.RegistrationResult, error)
	Get(ctx context.Context, walletAddress string) (registry.Registration, error)
}

// TokenService mints wallet tokens and doubles as the middleware validator.
type TokenService interface {
	middleware.WalletValidator
	Generate(walletAddress string, expiresIn time.Duration) (string, error)
}

type AuthHandler struct {
	registry RegistryService
	tokens   TokenService
}

func NewAuthHandler(reg RegistryService, tokens TokenService) *AuthHandler {
	return &AuthHandler{registry: reg, tokens: tokens}
}

type registerRequest struct {
	WalletAddress string `json:"walletAddress"`
	Role          string `json:"role"`
}

type authResponse struct {
	Token        string                `json:"token"`
	Registration registry.Registration `json:"registration"`
	TxHash       string                `json:"txHash,omitempty"`
	BlockNumber  int64                 `json:"blockNumber,omitempty"`
}

// handleRegister grants a role to a wallet and returns a bearer token for it.
func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "invalid request body"))
		return
	}
	role, err := registry.ParseRole(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.registry.Register(r.Context(), req.WalletAddress, role)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.tokens.Generate(res.Registration.WalletAddress, tokenTTL)
	if err != nil {
		writeError(w, domainerr.Wrap(domainerr.CodeInternal, "mint token", err))
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token:        token,
		Registration: res.Registration,
		TxHash:       res.TxHash,
		BlockNumber:  res.BlockNumber,
	})
}

type loginRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// handleLogin re-issues a token for an already-registered wallet.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerr.New(domainerr.CodeBadRequest, "invalid request body"))
		return
	}

	reg, err := h.registry.Get(r.Context(), req.WalletAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.tokens.Generate(reg.WalletAddress, tokenTTL)
	if err != nil {
		writeError(w, domainerr.Wrap(domainerr.CodeInternal, "mint token", err))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, Registration: reg})
}

// handleMe returns the caller's registration.
func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registry.Get(r.Context(), middleware.GetWallet(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}
