// Package pipeline orchestrates one ingestion run: read raw batches from the
// source, normalize and validate them, thread conversations, drop duplicates,
// write to the sink, then advance the watermark.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riverline/support-ingest/internal/dedup"
	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/normalizer"
	"github.com/riverline/support-ingest/internal/pkg/logger"
	"github.com/riverline/support-ingest/internal/threader"
	"github.com/riverline/support-ingest/internal/validator"
)

// Options configures one Pipeline.
type Options struct {
	SourceID   string
	BatchSize  int
	Workers    int
	StrictSink bool
}

// RunResult summarizes one completed run.
type RunResult struct {
	RunID            string           `json:"run_id"`
	SourceID         string           `json:"source_id"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
	BatchesProcessed int              `json:"batches_processed"`
	RecordsProcessed int              `json:"records_processed"`
	Inserted         int              `json:"inserted"`
	Duplicates       int              `json:"duplicates"`
	Invalid          int              `json:"invalid"`
	RecordErrors     int              `json:"record_errors"`
	SinkFailures     int              `json:"sink_failures"`
	AvgQualityScore  float64          `json:"avg_quality_score"`
	Throughput       float64          `json:"throughput_records_per_second"`
	Watermark        *domain.Watermark `json:"watermark,omitempty"`
}

// Duration returns the wall-clock run time.
func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Phase names where in the run lifecycle the pipeline currently is. After a
// run it parks on done or failed until the next one starts.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseLoading      Phase = "loading"
	PhaseThreading    Phase = "threading"
	PhaseValidating   Phase = "validating"
	PhaseInserting    Phase = "inserting"
	PhaseWatermarking Phase = "watermarking"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// Status is a read-only snapshot of the pipeline.
type Status struct {
	Running       bool              `json:"running"`
	Phase         Phase             `json:"phase"`
	LastRun       *RunResult        `json:"last_run,omitempty"`
	LastWatermark *domain.Watermark `json:"last_watermark,omitempty"`
}

// Pipeline wires the collaborators for one source.
type Pipeline struct {
	source     Source
	sink       Sink
	metrics    MetricsSink
	watermarks WatermarkStore
	validator  *validator.Validator
	opts       Options

	mu      sync.Mutex
	running bool
	phase   Phase
	lastRun *RunResult
}

// New creates a Pipeline. metrics may be nil to skip per-batch quality rows.
func New(src Source, sink Sink, metrics MetricsSink, watermarks WatermarkStore, v *validator.Validator, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10000
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Pipeline{
		source:     src,
		sink:       sink,
		metrics:    metrics,
		watermarks: watermarks,
		validator:  v,
		opts:       opts,
		phase:      PhaseIdle,
	}
}

func (p *Pipeline) setPhase(ph Phase) {
	p.mu.Lock()
	p.phase = ph
	p.mu.Unlock()
}

// Status returns the current snapshot without blocking a running pipeline.
func (p *Pipeline) Status(ctx context.Context) Status {
	p.mu.Lock()
	running := p.running
	phase := p.phase
	lastRun := p.lastRun
	p.mu.Unlock()

	st := Status{Running: running, Phase: phase, LastRun: lastRun}
	if p.watermarks != nil {
		if wm, err := p.watermarks.Get(ctx, p.opts.SourceID); err == nil {
			st.LastWatermark = wm
		}
	}
	return st
}

// runState accumulates across batches within one run.
type runState struct {
	threader   *threader.Threader
	seen       *dedup.SeenSet
	result     *RunResult
	scoreSum   float64
	scoreCount int
	maxTS      time.Time
	maxID      string
	batchNum   int
	started    time.Time
}

// Run executes one ingestion cycle. It returns the result even on error so
// callers can report partial progress.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return RunResult{}, ErrRunInProgress
	}
	p.running = true
	p.phase = PhaseLoading
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	started := time.Now().UTC()
	st := &runState{
		threader: threader.New(),
		seen:     dedup.NewSeenSet(),
		started:  started,
		result: &RunResult{
			RunID:     uuid.New().String(),
			SourceID:  p.opts.SourceID,
			StartedAt: started,
		},
	}

	var after *time.Time
	var priorProcessed int64
	if wm, err := p.watermarks.Get(ctx, p.opts.SourceID); err != nil {
		return p.finish(st, fmt.Errorf("load watermark: %w", err))
	} else if wm != nil {
		ts := wm.LastProcessedAt
		after = &ts
		priorProcessed = wm.RecordsProcessed
		logger.Info("Resuming from watermark",
			"source_id", p.opts.SourceID,
			"last_processed", ts.Format(time.RFC3339),
			"last_id", wm.LastProcessedID)
	} else {
		logger.Info("No watermark, processing from the beginning", "source_id", p.opts.SourceID)
	}

	err := p.source.ReadBatches(ctx, after, p.opts.BatchSize, func(batch []domain.RawInteraction) error {
		return p.processBatch(ctx, st, batch)
	})
	if err != nil {
		return p.finish(st, err)
	}

	p.setPhase(PhaseWatermarking)

	// The watermark only advances after every batch landed; a run with sink
	// failures leaves it alone so the rows are retried next cycle.
	if st.result.SinkFailures == 0 && !st.maxTS.IsZero() {
		wm := domain.Watermark{
			SourceID:         p.opts.SourceID,
			LastProcessedAt:  st.maxTS,
			LastProcessedID:  st.maxID,
			RecordsProcessed: priorProcessed + int64(st.result.RecordsProcessed),
			UpdatedAt:        time.Now().UTC(),
			BatchInfo:        fmt.Sprintf("batch_%s_%04d", st.started.Format("20060102_150405"), st.batchNum),
		}
		// A failed watermark write is not fatal: the inserts already landed
		// and the next run replays into the sinks' hash dedup.
		if err := p.watermarks.Put(ctx, p.opts.SourceID, wm); err != nil {
			logger.Error("Failed to store watermark, next run will reprocess",
				"source_id", p.opts.SourceID, "error", err.Error())
		} else {
			st.result.Watermark = &wm
		}
	}

	return p.finish(st, nil)
}

func (p *Pipeline) finish(st *runState, err error) (RunResult, error) {
	st.result.FinishedAt = time.Now().UTC()
	if st.scoreCount > 0 {
		st.result.AvgQualityScore = st.scoreSum / float64(st.scoreCount)
	}
	if d := st.result.Duration().Seconds(); d > 0 {
		st.result.Throughput = float64(st.result.RecordsProcessed) / d
	}

	p.mu.Lock()
	if err != nil {
		p.phase = PhaseFailed
	} else {
		p.phase = PhaseDone
	}
	p.lastRun = st.result
	p.mu.Unlock()

	if err != nil {
		logger.Error("Pipeline run failed",
			"run_id", st.result.RunID,
			"source_id", p.opts.SourceID,
			"error", err.Error())
	} else {
		logger.Info("Pipeline run complete",
			"run_id", st.result.RunID,
			"source_id", p.opts.SourceID,
			"batches", st.result.BatchesProcessed,
			"records", st.result.RecordsProcessed,
			"inserted", st.result.Inserted,
			"duplicates", st.result.Duplicates,
			"invalid", st.result.Invalid,
			"avg_quality", fmt.Sprintf("%.3f", st.result.AvgQualityScore))
	}
	return *st.result, err
}

func (p *Pipeline) processBatch(ctx context.Context, st *runState, batch []domain.RawInteraction) error {
	st.batchNum++
	batchID := fmt.Sprintf("batch_%s_%04d", st.started.Format("20060102_150405"), st.batchNum)

	normalized := make([]domain.NormalizedRecord, len(batch))
	p.parallelFor(len(batch), func(i int) {
		rec, err := normalizer.Normalize(batch[i])
		if err != nil {
			logger.Debug("Timestamp parse failed", "external_id", rec.ExternalID, "raw", batch[i].CreatedAt)
		}
		normalized[i] = rec
	})

	p.setPhase(PhaseThreading)
	th := st.threader.Thread(normalized)

	p.setPhase(PhaseValidating)
	verdicts := make([]domain.QualityVerdict, len(th.Records))
	p.parallelFor(len(th.Records), func(i int) {
		verdicts[i] = p.validator.Validate(th.Records[i])
	})

	records := make([]domain.Record, 0, len(th.Records))
	for i, rec := range th.Records {
		st.result.RecordsProcessed++
		st.scoreSum += verdicts[i].Score
		st.scoreCount++

		if ts := rec.CreatedAtParsed; ts != nil && ts.After(st.maxTS) {
			st.maxTS = *ts
			st.maxID = rec.ExternalID
		}

		if !verdicts[i].IsValid {
			st.result.Invalid++
			logger.Debug("Invalid record",
				"external_id", rec.ExternalID,
				"score", fmt.Sprintf("%.2f", verdicts[i].Score),
				"issues", fmt.Sprintf("%v", verdicts[i].Issues))
			continue
		}

		hash := dedup.HashRecord(rec)
		if st.seen.Add(hash) {
			st.result.Duplicates++
			continue
		}

		info := th.Threads[i]
		summary := th.Summaries[info.ConversationID]
		records = append(records, domain.Record{
			NormalizedRecord:  rec,
			ConversationID:    info.ConversationID,
			ThreadPosition:    info.ThreadPosition,
			IsCustomerMessage: info.IsCustomerMessage,
			ConversationType:  string(info.ConversationType),
			TotalMessages:     summary.TotalMessages,
			CustomerMessages:  summary.CustomerMessages,
			Participants:      summary.Participants,
			DurationHours:     summary.DurationHours,
			RecordHash:        hash.ToHex(),
			QualityScore:      verdicts[i].Score,
			Issues:            verdicts[i].Issues,
			SourceID:          p.opts.SourceID,
		})
	}

	p.setPhase(PhaseInserting)
	result, err := p.sink.InsertBatch(ctx, records)
	if err != nil {
		sinkErr := &SinkError{BatchID: batchID, Err: err}
		if p.opts.StrictSink {
			return sinkErr
		}
		st.result.SinkFailures++
		logger.Error("Batch insert failed, continuing", "batch_id", batchID, "error", err.Error())
	} else {
		st.result.Inserted += result.Inserted
		st.result.Duplicates += result.Duplicates
		st.result.RecordErrors += result.Errors
	}

	if p.metrics != nil {
		report := validator.Report(verdicts)
		if err := p.metrics.RecordQualityMetrics(ctx, batchID, p.opts.SourceID, report); err != nil {
			logger.Warn("Failed to record quality metrics", "batch_id", batchID, "error", err.Error())
		}
	}

	// Back to loading while the source produces the next batch.
	p.setPhase(PhaseLoading)

	st.result.BatchesProcessed++
	logger.Info("Batch processed",
		"batch_id", batchID,
		"records", len(batch),
		"valid", len(records),
		"invalid", st.result.Invalid)
	return nil
}

// parallelFor runs fn over [0,n) with the configured worker count. Results
// index into preallocated slices, so order is preserved.
func (p *Pipeline) parallelFor(n int, fn func(i int)) {
	workers := p.opts.Workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
