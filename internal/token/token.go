// Package token issues and validates the bearer tokens the API layer uses to
// carry an authenticated wallet identity. Credential verification (wallet
// signature checks) happens upstream; this service only binds the result to
// a short-lived token.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ecotrace/internal/platform/middleware"
	"ecotrace/pkg/domainerr"
)

// Claims represents the JWT claims for wallet access tokens.
type Claims struct {
	WalletAddress string `json:"wallet_address"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// Generate mints a token for the given wallet. The address is normalized to
// lowercase before it is embedded so every downstream lookup sees one form.
func (s *Service) Generate(walletAddress string, expiresIn time.Duration) (string, error) {
	claims := Claims{
		WalletAddress: strings.ToLower(walletAddress),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// ValidateToken implements middleware.WalletValidator.
func (s *Service) ValidateToken(tokenString string) (*middleware.WalletClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainerr.New(domainerr.CodeBadRequest, "token has expired")
		}
		return nil, domainerr.New(domainerr.CodeBadRequest, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domainerr.New(domainerr.CodeBadRequest, "invalid token claims")
	}
	return &middleware.WalletClaims{WalletAddress: strings.ToLower(claims.WalletAddress)}, nil
}
