// Package batch runs the resolution pipeline over stored message
// records: selection, extraction, sanitization, genre backfill and
// persistence, plus the fixup pass that re-derives fields without new
// extraction calls.
package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vLannaAi/i3speedex-sub004/internal/backfill"
	"github.com/vLannaAi/i3speedex-sub004/internal/config"
	"github.com/vLannaAi/i3speedex-sub004/internal/extract"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
	"github.com/vLannaAi/i3speedex-sub004/internal/store"
	"github.com/vLannaAi/i3speedex-sub004/pkg/anthropic"
)

// Extractor resolves one preprocessed identity. Implemented by
// extract.Engine; faked in tests.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) identity.ExtractionResult
	Usage() anthropic.TokenUsage
	LogCost()
}

// Summary is the per-tier accounting of one batch run.
type Summary struct {
	Processed     int
	High          int
	Medium        int
	Low           int
	NotApplicable int
	Failed        int
	Elapsed       time.Duration
}

// Orchestrator drives sequential sub-batched processing of unprocessed
// records.
type Orchestrator struct {
	store     store.Store
	extractor Extractor
	cfg       config.BatchConfig
	limiter   *rate.Limiter
}

// NewOrchestrator creates an orchestrator. Zero config values fall back
// to the defaults (sub-batches of 10, 500 ms apart, progress every 50).
func NewOrchestrator(st store.Store, ex Extractor, cfg config.BatchConfig) *Orchestrator {
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = 10
	}
	if cfg.SubBatchDelayMS <= 0 {
		cfg.SubBatchDelayMS = 500
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = 50
	}
	return &Orchestrator{
		store:     st,
		extractor: ex,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Every(time.Duration(cfg.SubBatchDelayMS)*time.Millisecond), 1),
	}
}

// Run processes up to limit unprocessed records, newest first. A
// per-record failure is persisted as a degraded result and counted, not
// fatal; cancellation is honored between sub-batches so an interrupted
// run leaves no half-written record behind.
func (o *Orchestrator) Run(ctx context.Context, limit int) (*Summary, error) {
	if limit <= 0 {
		limit = o.cfg.Limit
	}

	records, err := o.store.SelectUnprocessed(ctx, limit)
	if err != nil {
		return nil, err
	}

	zap.L().Info("batch: starting run",
		zap.Int("records", len(records)),
		zap.Int("sub_batch_size", o.cfg.SubBatchSize),
	)

	summary := &Summary{}
	cache := backfill.NewCache()
	start := time.Now()

	// The limiter starts with a full token; drain it so the wait before
	// the second sub-batch is paced like every later one.
	o.limiter.Allow()

	for i := 0; i < len(records); i += o.cfg.SubBatchSize {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			o.logSummary(summary)
			return summary, eris.Wrap(err, "batch: run cancelled")
		}
		if i > 0 {
			if err := o.limiter.Wait(ctx); err != nil {
				summary.Elapsed = time.Since(start)
				o.logSummary(summary)
				return summary, eris.Wrap(err, "batch: pacing interrupted")
			}
		}

		end := min(i+o.cfg.SubBatchSize, len(records))
		for j := i; j < end; j++ {
			o.processRecord(ctx, &records[j], cache, summary)
			summary.Processed++

			if summary.Processed%o.cfg.ProgressInterval == 0 {
				elapsed := time.Since(start)
				perRecord := elapsed / time.Duration(summary.Processed)
				zap.L().Info("batch: progress",
					zap.Int("processed", summary.Processed),
					zap.Int("total", len(records)),
					zap.Duration("elapsed", elapsed.Round(time.Second)),
					zap.Duration("eta", (perRecord * time.Duration(len(records)-summary.Processed)).Round(time.Second)),
				)
			}
		}
	}

	summary.Elapsed = time.Since(start)
	o.logSummary(summary)
	o.extractor.LogCost()
	return summary, nil
}

// processRecord runs the full pipeline for one record and persists the
// outcome. Never returns; failures are tallied on the summary.
func (o *Orchestrator) processRecord(ctx context.Context, rec *identity.MessageRecord, cache *backfill.Cache, summary *Summary) {
	pre := identity.Preprocess(rec.RawFrom)
	if pre.Email == "" && rec.Email != "" {
		// Garbage raw_from but a previously stored address: work from that.
		pre = identity.Preprocess(rec.Email)
	}

	hint := identity.DetectPattern(pre.LocalPart)
	isService := identity.IsServiceAddress(pre.Email)

	res := o.extractor.Extract(ctx, extract.Request{
		Input:            pre,
		Hint:             hint,
		IsServiceAddress: isService,
	})

	identity.Sanitize(&res, pre, hint)

	if res.Genre == "" {
		res.Genre = identity.GenreFromDisplay(pre.Display)
	}
	if res.Genre == "" && res.IsPersonal && res.Name1 != "" {
		g, err := backfill.Backfill(ctx, o.store, cache, res.Name1)
		if err != nil {
			zap.L().Warn("batch: genre backfill failed",
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
		} else {
			res.Genre = g
		}
	}

	res.Status = identity.ClassifyStatus(res.Confidence, res.IsPersonal, res.Name1, res.Name2)

	rec.Email = pre.Email
	rec.Domain = pre.Domain
	rec.LocalPart = pre.LocalPart
	rec.Extraction = res
	rec.DisplayClassification = classifyDisplay(res, isService)
	if rec.Version == 0 {
		rec.Version = 1
	}

	if err := o.store.SaveExtractionResult(ctx, rec); err != nil {
		summary.Failed++
		zap.L().Error("batch: save failed",
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
		return
	}

	switch res.Status {
	case identity.StatusHigh:
		summary.High++
	case identity.StatusMedium:
		summary.Medium++
	case identity.StatusNotApplicable:
		summary.NotApplicable++
	default:
		summary.Low++
	}
}

// classifyDisplay labels what kind of sender the record appears to be.
func classifyDisplay(res identity.ExtractionResult, isService bool) string {
	switch {
	case isService:
		return "service"
	case res.IsPersonal:
		return "person"
	default:
		return "organization"
	}
}

func (o *Orchestrator) logSummary(s *Summary) {
	zap.L().Info("batch: run summary",
		zap.Int("processed", s.Processed),
		zap.Int("extracted_high", s.High),
		zap.Int("extracted_medium", s.Medium),
		zap.Int("extracted_low", s.Low),
		zap.Int("not_applicable", s.NotApplicable),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
	)
}
