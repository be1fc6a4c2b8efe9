package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/cinerate/internal/authz"
	"github.com/Clark-Hu/cinerate/internal/domain"
)

// ImportResult summarizes an import run.
type ImportResult struct {
	Saved   int
	Skipped int
	Pages   int
}

// Import walks the external popular listing page by page and stores movies
// not yet in the catalog until limit new movies were saved or the listing
// is exhausted. Inserts are batched, one transaction per batch.
func (s *Service) Import(ctx context.Context, actor authz.Actor, limit int) (ImportResult, error) {
	if err := requireAdmin(actor); err != nil {
		return ImportResult{}, err
	}
	if limit <= 0 {
		return ImportResult{}, domain.Validationf("limit must be positive")
	}
	if s.client == nil {
		return ImportResult{}, ErrCatalogDisabled
	}

	start := time.Now()
	var (
		res     ImportResult
		pending []domain.MovieInput
		seen    = make(map[int64]struct{})
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		var inserted int
		err := s.tx.WithTx(ctx, func(tx pgx.Tx) error {
			var err error
			inserted, err = s.repo.WithTx(tx).Movies.InsertBatch(ctx, pending)
			return err
		})
		if err != nil {
			return err
		}
		res.Saved += inserted
		res.Skipped += len(pending) - inserted
		s.metrics.AddImported(inserted)
		pending = pending[:0]
		return nil
	}

	for page := 1; page <= maxImportPages && res.Saved+len(pending) < limit; page++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		listing, err := s.client.Popular(ctx, page)
		if err != nil {
			if flushErr := flush(); flushErr != nil {
				s.logger.Error("import: flush after fetch failure", zap.Error(flushErr))
			}
			return res, fmt.Errorf("fetch popular page %d: %w", page, err)
		}
		res.Pages++
		if len(listing.Results) == 0 {
			break
		}

		ids := make([]int64, 0, len(listing.Results))
		for _, m := range listing.Results {
			ids = append(ids, m.ID)
		}
		existing, err := s.repo.Movies.ExistingTMDBIDs(ctx, ids)
		if err != nil {
			return res, err
		}

		for _, m := range listing.Results {
			if res.Saved+len(pending) >= limit {
				break
			}
			if _, ok := existing[m.ID]; ok {
				res.Skipped++
				continue
			}
			if _, ok := seen[m.ID]; ok {
				continue
			}
			in, err := normalizeInput(fromUpstream(m))
			if err != nil {
				s.logger.Debug("import: skipping invalid movie", zap.Int64("tmdb_id", m.ID), zap.Error(err))
				res.Skipped++
				continue
			}
			seen[m.ID] = struct{}{}
			pending = append(pending, in)
			if len(pending) >= s.batchSize {
				if err := flush(); err != nil {
					return res, err
				}
			}
		}

		if listing.TotalPages > 0 && page >= listing.TotalPages {
			break
		}
	}

	if err := flush(); err != nil {
		return res, err
	}

	s.logger.Info("import finished",
		zap.Int("saved", res.Saved),
		zap.Int("skipped", res.Skipped),
		zap.Int("pages", res.Pages),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}
