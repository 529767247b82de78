package ledger

import (
	"context"
	"fmt"
	"time"

	"ecotrace/internal/counter"
	"ecotrace/internal/ledger/txgen"
)

// Log is the simulator's commitment log. Append happens after ID allocation,
// so entries arrive in allocation order per namespace.
type Log interface {
	Append(ctx context.Context, c Committed) error
	Range(ctx context.Context, namespace string, from, to int64) ([]Committed, error)
}

// Simulator implements Ledger locally. It honors the exact allocation
// guarantee of the real backend by drawing ledger IDs from the shared
// counter, and fabricates commitment references via txgen.
type Simulator struct {
	alloc counter.Allocator
	log   Log
}

// NewSimulator builds a simulator over the given allocator and commit log.
func NewSimulator(alloc counter.Allocator, log Log) *Simulator {
	return &Simulator{alloc: alloc, log: log}
}

func (s *Simulator) Commit(ctx context.Context, op Operation) (Receipt, error) {
	if op.Namespace != "" {
		id, err := s.alloc.Next(ctx, op.Namespace)
		if err != nil {
			return Receipt{}, fmt.Errorf("allocate %s: %w", op.Namespace, err)
		}
		op.LedgerID = id
	}

	receipt := Receipt{
		TxHash:      txgen.TxHash(),
		BlockNumber: txgen.BlockNumber(),
		LedgerID:    op.LedgerID,
		CommittedAt: time.Now().UTC(),
	}
	if err := s.log.Append(ctx, Committed{Op: op, Receipt: receipt}); err != nil {
		return Receipt{}, fmt.Errorf("append commit log: %w", err)
	}
	return receipt, nil
}

func (s *Simulator) Replay(ctx context.Context, namespace string, from, to int64) ([]Committed, error) {
	return s.log.Range(ctx, namespace, from, to)
}
