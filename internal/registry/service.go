package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ecotrace/internal/events"
	"ecotrace/internal/ledger"
	"ecotrace/internal/platform/metrics"
	"ecotrace/internal/projection"
	"ecotrace/pkg/domainerr"
	"ecotrace/pkg/sentinel"
)

// Service accumulates wallet roles. Registration is idempotent per
// (wallet, role) pair: re-registering a held role commits a fresh ledger
// entry but leaves the role set unchanged.
type Service struct {
	store   Store
	ledger  ledger.Ledger
	bridge  *projection.Bridge
	bus     *events.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewService(
	store Store,
	led ledger.Ledger,
	bridge *projection.Bridge,
	bus *events.Bus,
	logger *slog.Logger,
	m *metrics.Metrics,
	timeout time.Duration,
) *Service {
	s := &Service{
		store:   store,
		ledger:  led,
		bridge:  bridge,
		bus:     bus,
		logger:  logger,
		metrics: m,
		timeout: timeout,
	}
	bridge.Register(events.KindUserRegistered, s.applyRegistered)
	return s
}

// Register grants a role to a wallet, creating the registration on first
// use. The wallet is lowercased before any lookup or store access.
func (s *Service) Register(ctx context.Context, walletAddress string, role Role) (*RegistrationResult, error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		s.metrics.ObserveOperation("register_user", outcome, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wallet := NormalizeWallet(walletAddress)
	if wallet == "" {
		outcome = string(domainerr.CodeBadRequest)
		return nil, domainerr.New(domainerr.CodeBadRequest, "wallet address is required")
	}

	payload := RegisteredPayload{
		WalletAddress: wallet,
		Role:          role,
		RegisteredAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		outcome = string(domainerr.CodeInternal)
		return nil, domainerr.Wrap(domainerr.CodeInternal, "encode registration", err)
	}

	receipt, err := s.ledger.Commit(ctx, ledger.Operation{
		Kind:    ledger.OpRegisterUser,
		Wallet:  wallet,
		Payload: raw,
	})
	if err != nil {
		outcome = string(domainerr.CodeOf(err))
		return nil, domainerr.FromInfra(err, "commit registration")
	}

	ev := events.Event{
		ID:          uuid.NewString(),
		Kind:        events.KindUserRegistered,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		Role:        string(role),
		Payload:     raw,
		OccurredAt:  receipt.CommittedAt,
	}
	if err := s.bridge.ApplyOrRetry(ctx, ev); err != nil {
		outcome = string(domainerr.CodeInternal)
		return nil, domainerr.Wrap(domainerr.CodeInternal, "apply registration", err)
	}
	s.bus.Publish(ev)

	reg, err := s.store.Get(ctx, wallet)
	if err != nil {
		// Projection write was deferred to the retry queue; answer from
		// the committed payload.
		reg = Registration{
			WalletAddress: wallet,
			Roles:         []Role{role},
			RegisteredAt:  payload.RegisteredAt,
		}
	} else if !reg.HasRole(role) {
		// The role append is still in the retry queue; the grant is
		// committed, so reflect it to the caller.
		reg.Roles = append(reg.Roles, role)
	}
	return &RegistrationResult{
		Registration: reg,
		TxHash:       receipt.TxHash,
		BlockNumber:  receipt.BlockNumber,
	}, nil
}

// Get returns the registration for a wallet.
func (s *Service) Get(ctx context.Context, walletAddress string) (Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	reg, err := s.store.Get(ctx, NormalizeWallet(walletAddress))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Registration{}, domainerr.New(domainerr.CodeNotFound, "wallet is not registered")
	}
	if err != nil {
		return Registration{}, domainerr.FromInfra(err, "load registration")
	}
	return reg, nil
}

// HasRole reports whether the wallet holds the role. Unknown wallets hold no
// roles.
func (s *Service) HasRole(ctx context.Context, walletAddress string, role Role) (bool, error) {
	reg, err := s.store.Get(ctx, NormalizeWallet(walletAddress))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load registration: %w", err)
	}
	return reg.HasRole(role), nil
}

// IsRegistered reports whether the wallet has any registration at all.
func (s *Service) IsRegistered(ctx context.Context, walletAddress string) (bool, error) {
	_, err := s.store.Get(ctx, NormalizeWallet(walletAddress))
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load registration: %w", err)
	}
	return true, nil
}

func (s *Service) applyRegistered(ctx context.Context, ev events.Event) error {
	var payload RegisteredPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("decode registration payload: %w", err)
	}
	if _, err := s.store.AppendRole(ctx, payload.WalletAddress, payload.Role, payload.RegisteredAt); err != nil {
		return fmt.Errorf("append role %s to %s: %w", payload.Role, payload.WalletAddress, err)
	}
	return nil
}
