package batch

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vLannaAi/i3speedex-sub004/internal/backfill"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
	"github.com/vLannaAi/i3speedex-sub004/internal/store"
)

// fixupWorkers bounds concurrent re-derivation. The pass makes no
// extraction calls, so parallelism is limited only by the store.
const fixupWorkers = 8

// fixupPageSize is how many processed records are pulled per page.
const fixupPageSize = 500

// FixupSummary accounts one fixup pass.
type FixupSummary struct {
	Scanned int
	Updated int
	Failed  int
}

// Fixup re-derives the deterministic fields (initials, organization
// label, honorific genre, status) of already-processed records and
// bumps their version. Extraction output is left untouched; only the
// derivations downstream of it are recomputed.
func Fixup(ctx context.Context, st store.Store) (*FixupSummary, error) {
	summary := &FixupSummary{}
	cache := backfill.NewCache()
	var updated, failed atomic.Int64

	for offset := 0; ; offset += fixupPageSize {
		records, err := st.ListProcessed(ctx, store.ProcessedFilter{
			Limit:  fixupPageSize,
			Offset: offset,
		})
		if err != nil {
			return summary, err
		}
		if len(records) == 0 {
			break
		}
		summary.Scanned += len(records)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fixupWorkers)
		for i := range records {
			rec := &records[i]
			g.Go(func() error {
				if err := fixupRecord(gctx, st, cache, rec); err != nil {
					failed.Add(1)
					zap.L().Warn("batch: fixup record failed",
						zap.String("record_id", rec.ID),
						zap.Error(err),
					)
					return nil
				}
				updated.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return summary, err
		}
		if err := ctx.Err(); err != nil {
			break
		}
	}

	summary.Updated = int(updated.Load())
	summary.Failed = int(failed.Load())
	zap.L().Info("batch: fixup summary",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// fixupRecord recomputes one record's derived fields in place and
// persists them.
func fixupRecord(ctx context.Context, st store.Store, cache *backfill.Cache, rec *identity.MessageRecord) error {
	pre := identity.Preprocess(rec.RawFrom)
	if pre.Email == "" && rec.Email != "" {
		pre = identity.Preprocess(rec.Email)
	}

	hint := identity.DetectPattern(pre.LocalPart)
	isService := identity.IsServiceAddress(pre.Email)

	res := rec.Extraction
	identity.Sanitize(&res, pre, hint)
	if res.Genre == "" {
		res.Genre = identity.GenreFromDisplay(pre.Display)
	}
	if res.Genre == "" && res.IsPersonal && res.Name1 != "" {
		g, err := backfill.Backfill(ctx, st, cache, res.Name1)
		if err != nil {
			return err
		}
		res.Genre = g
	}
	res.Status = identity.ClassifyStatus(res.Confidence, res.IsPersonal, res.Name1, res.Name2)

	rec.Extraction = res
	rec.DisplayClassification = classifyDisplay(res, isService)

	return st.UpdateDerivedFields(ctx, rec)
}
