package pipeline

import (
	"context"

	"github.com/aman-ankur/labextract/internal/extraction/chunker"
	"github.com/aman-ankur/labextract/internal/extraction/common"
	"github.com/aman-ankur/labextract/internal/extraction/tracker"
	"github.com/aman-ankur/labextract/internal/infrastructure/monitoring/logging"
	"github.com/aman-ankur/labextract/pkg/errors"
	"github.com/aman-ankur/labextract/pkg/types/biomarker"
)

// shard is one chunk's contribution in concurrent mode. Each shard starts
// from the run's initial context and carries its own updated copy; the
// shards are reconciled with tracker.Merge afterward, in input order, so the
// outcome does not depend on completion order.
type shard struct {
	cands    []biomarker.Candidate
	tctx     tracker.Context
	rejected int
}

// extractConcurrent processes chunks in parallel. Trade-offs against the
// sequential reference: every prompt is a full prompt (no delta, shards do
// not see each other), scoring priors are per-shard, and the
// consecutive-empty fallback switch does not apply; a shard that hits a
// transport failure falls back individually instead.
func (r *run) extractConcurrent(ctx context.Context, chunks []chunker.Chunk) {
	if len(chunks) == 0 {
		return
	}

	base := r.tctx
	proc := common.NewBatchProcessor[chunker.Chunk, shard](common.BatchConfig{
		Concurrency: r.p.cfg.ChunkConcurrency,
	})
	batch, err := proc.Process(ctx, chunks, func(ctx context.Context, ch chunker.Chunk) (shard, error) {
		return r.shardChunk(ctx, base, ch), nil
	})
	if err != nil {
		r.logger.Error("concurrent chunk batch failed", logging.Err(err))
		return
	}

	for _, item := range batch.Results {
		if item == nil {
			continue
		}
		if item.Err != nil {
			r.cancelled = r.cancelled || ctx.Err() != nil
			continue
		}
		s := item.Result
		r.processed++
		r.tctx = tracker.Merge(r.tctx, s.tctx)
		r.candidates = append(r.candidates, s.cands...)
		r.rejected += s.rejected
	}
	if ctx.Err() != nil {
		r.cancelled = true
	}
}

// shardChunk is the concurrent counterpart of processChunk. It never touches
// run state other than the atomic fallback marker; everything else travels
// in the returned shard.
func (r *run) shardChunk(ctx context.Context, base tracker.Context, ch chunker.Chunk) (out shard) {
	out.tctx = base
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("chunk processing panicked, contributing nothing",
				logging.Int("page", ch.Page),
				logging.Any("panic", rec))
			out = shard{tctx: base}
		}
	}()

	res, err := r.gw.ExtractChunk(ctx, ch, base, r.vendor)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeCancelled) {
			return out
		}
		if errors.IsTransient(err) {
			r.markShardFallback(ctx, err)
			cands := r.p.fallback.Parse(ctx, ch.Text, ch.Page)
			if ch.RegionType == chunker.RegionTable {
				for i := range cands {
					cands[i].FromTable = true
				}
			}
			scored, dropped := r.validator.Score(ctx, cands, base.KnownBiomarkers)
			out.cands = scored
			out.rejected = dropped
			r.p.metrics.RecordChunk(ctx, string(ch.RegionType), len(scored))
			return out
		}
		r.logger.Warn("chunk extraction failed, contributing nothing",
			logging.Int("page", ch.Page),
			logging.Err(err))
		return out
	}

	accepted, rejected := r.validator.Ingest(ctx, res.Candidates, ch.Page, ch.RegionType == chunker.RegionTable)
	scored, dropped := r.validator.Score(ctx, accepted, base.KnownBiomarkers)
	out.tctx = base.Update(scored, ch.Page, res.TokensIn, res.TokensOut)
	out.cands = scored
	out.rejected = rejected + dropped
	r.p.metrics.RecordChunk(ctx, string(ch.RegionType), len(scored))
	return out
}

// markShardFallback records the first shard-level fallback activation.
func (r *run) markShardFallback(ctx context.Context, err error) {
	if r.shardFallback.CompareAndSwap(false, true) {
		trigger := "unavailable"
		if errors.IsCode(err, errors.ErrCodeGatewayTimeout) {
			trigger = "timeout"
		}
		r.p.metrics.RecordFallbackActivation(ctx, trigger)
		r.logger.Info("shard fell back to the deterministic parser",
			logging.String("trigger", trigger))
	}
}
