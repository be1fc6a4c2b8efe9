// Package ledger implements the mutating operations over ratings, reviews,
// likes and watch history. Every mutation runs in one transaction that also
// maintains the derived values (movie average rating, review like count), so
// the aggregates never disagree with the rows they summarize.
package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
	"github.com/Clark-Hu/cinerate/internal/metrics"
	"github.com/Clark-Hu/cinerate/internal/repository"
)

// TxRunner runs fn in a transaction that commits only when fn returns nil.
// *store.Store satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Ledger coordinates the rating, review, like and watch tables.
type Ledger struct {
	tx      TxRunner
	repo    *repository.Repository
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Ledger. repo serves reads outside transactions; logger and m
// may be nil.
func New(tx TxRunner, repo *repository.Repository, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{tx: tx, repo: repo, logger: logger, metrics: m}
}

// inTx runs fn with a transaction-bound repository and records the outcome
// under op.
func (l *Ledger) inTx(ctx context.Context, op string, fn func(r *repository.Repository) error) error {
	start := time.Now()
	err := l.tx.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(l.repo.WithTx(tx))
	})
	l.metrics.ObserveLedgerOp(op, err)

	if err != nil && domain.KindOf(err) == 0 {
		l.logger.Error("ledger operation failed",
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	return err
}

func authorize(actor authz.Actor, action authz.Action, res authz.Resource) error {
	d := authz.Decide(actor, action, res)
	if !d.Allowed {
		return domain.Permissionf("%s", d.Reason)
	}
	return nil
}
