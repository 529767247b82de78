package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// WalletValidator validates a bearer token and returns the wallet claims.
// The session layer owns credential verification; this middleware only
// extracts the already-authenticated caller identity.
type WalletValidator interface {
	ValidateToken(tokenString string) (*WalletClaims, error)
}

// WalletClaims represents the claims we expect from the token validator.
type WalletClaims struct {
	WalletAddress string
}

type contextKeyWallet struct{}

// ContextKeyWallet is exported for use in handlers and tests.
var ContextKeyWallet = contextKeyWallet{}

// GetWallet retrieves the authenticated wallet address from the context.
// The address is already lowercase-normalized.
func GetWallet(ctx context.Context) string {
	wallet, ok := ctx.Value(ContextKeyWallet).(string)
	if !ok {
		return ""
	}
	return wallet
}

// WithWallet stores a wallet address in the context. Exported for tests that
// bypass the HTTP middleware.
func WithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, ContextKeyWallet, strings.ToLower(wallet))
}

// RequireWallet rejects requests without a valid bearer token and stores the
// normalized wallet address in the request context.
func RequireWallet(validator WalletValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, logger, r, "missing or malformed Authorization header")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil || claims.WalletAddress == "" {
				unauthorized(w, logger, r, "invalid or expired token")
				return
			}
			ctx := WithWallet(r.Context(), claims.WalletAddress)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, logger *slog.Logger, r *http.Request, reason string) {
	logger.WarnContext(r.Context(), "unauthorized request",
		"reason", reason,
		"path", r.URL.Path,
		"request_id", GetRequestID(r.Context()),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
