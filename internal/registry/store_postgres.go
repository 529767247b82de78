package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ecotrace/pkg/sentinel"
)

// PostgresStore persists registrations in PostgreSQL. Roles live in a text
// array column; the append is one guarded UPDATE so concurrent appends can
// never produce a partial role set.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, wallet string) (Registration, error) {
	query := `
		SELECT wallet_address, roles, registered_at
		FROM registrations
		WHERE wallet_address = $1
	`
	var (
		reg   Registration
		roles []string
	)
	err := s.db.QueryRowContext(ctx, query, wallet).Scan(&reg.WalletAddress, pq.Array(&roles), &reg.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Registration{}, fmt.Errorf("find registration: %w", err)
	}
	for _, r := range roles {
		reg.Roles = append(reg.Roles, Role(r))
	}
	return reg, nil
}

func (s *PostgresStore) AppendRole(ctx context.Context, wallet string, role Role, registeredAt time.Time) (Registration, error) {
	// The WHERE guard keeps the append idempotent: an already-held role
	// leaves the row untouched, so the update never duplicates entries.
	query := `
		INSERT INTO registrations (wallet_address, roles, registered_at)
		VALUES ($1, ARRAY[$2]::text[], $3)
		ON CONFLICT (wallet_address) DO UPDATE
		SET roles = registrations.roles || EXCLUDED.roles
		WHERE NOT registrations.roles @> EXCLUDED.roles
	`
	if _, err := s.db.ExecContext(ctx, query, wallet, string(role), registeredAt); err != nil {
		return Registration{}, fmt.Errorf("append role: %w", err)
	}
	return s.Get(ctx, wallet)
}
