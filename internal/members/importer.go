package members

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/EmpoweredVote/mp-sync/internal/logging"
	"github.com/EmpoweredVote/mp-sync/internal/members/parl"
	"github.com/EmpoweredVote/mp-sync/internal/metrics"
)

// PageFetcher retrieves one raw member page.
type PageFetcher interface {
	Fetch(ctx context.Context, memberID string) (*parl.Page, error)
}

// RecordLoader upserts one extracted profile.
type RecordLoader interface {
	Load(ctx context.Context, f parl.Fields) (*Member, error)
}

// Per-id outcomes of an import batch.
const (
	OutcomeLoaded    = "loaded"
	OutcomeFetch     = "fetch_failed"
	OutcomeExtract   = "extract_failed"
	OutcomeInvalid   = "invalid"
	OutcomeStoreFail = "store_failed"
	OutcomeSkipped   = "skipped"
)

// Report summarizes one import batch.
type Report struct {
	Total         int       `json:"total"`
	Loaded        int       `json:"loaded"`
	Skipped       int       `json:"skipped"`
	FetchFailed   []string  `json:"fetch_failed,omitempty"`
	ExtractFailed []string  `json:"extract_failed,omitempty"`
	Invalid       []string  `json:"invalid,omitempty"`
	StoreFailed   []string  `json:"store_failed,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Failed counts ids that were attempted and did not load.
func (r Report) Failed() int {
	return len(r.FetchFailed) + len(r.ExtractFailed) + len(r.Invalid) + len(r.StoreFailed)
}

// Processed counts ids with any outcome, skipped included.
func (r Report) Processed() int {
	return r.Loaded + r.Skipped + r.Failed()
}

func (r Report) clone() Report {
	c := r
	c.FetchFailed = append([]string(nil), r.FetchFailed...)
	c.ExtractFailed = append([]string(nil), r.ExtractFailed...)
	c.Invalid = append([]string(nil), r.Invalid...)
	c.StoreFailed = append([]string(nil), r.StoreFailed...)
	return c
}

func (r *Report) record(id, outcome string) {
	metrics.ImportIDsTotal.WithLabelValues(outcome).Inc()
	switch outcome {
	case OutcomeLoaded:
		r.Loaded++
	case OutcomeFetch:
		r.FetchFailed = append(r.FetchFailed, id)
	case OutcomeExtract:
		r.ExtractFailed = append(r.ExtractFailed, id)
	case OutcomeInvalid:
		r.Invalid = append(r.Invalid, id)
	case OutcomeStoreFail:
		r.StoreFailed = append(r.StoreFailed, id)
	case OutcomeSkipped:
		r.Skipped++
	}
}

// ProgressFunc receives a snapshot of the report after every id.
type ProgressFunc func(Report)

// Importer runs Fetch, Extract and Load over a batch of member ids.
// Fetch and extract run on a bounded pool; loads run one at a time.
type Importer struct {
	fetcher PageFetcher
	loader  RecordLoader
	store   Store
	workers int
	log     *zap.Logger
}

func NewImporter(fetcher PageFetcher, loader RecordLoader, store Store, workers int, log *zap.Logger) *Importer {
	if workers < 1 {
		workers = 1
	}
	return &Importer{
		fetcher: fetcher,
		loader:  loader,
		store:   store,
		workers: workers,
		log:     log.Named("importer"),
	}
}

type extracted struct {
	id      string
	fields  parl.Fields
	outcome string
	err     error
}

// Run imports ids. Per-id failures are recorded in the report and never stop
// the batch. The batch aborts with ErrStoreUnavailable when the store cannot
// be reached, and stops dispatching new ids when ctx is cancelled; in both
// cases the returned report covers every id.
//
// The batch holds the import side of the phase lock throughout, so it is
// refused with ErrReconcileInProgress while duplicates are being grouped or
// merged, and reconciliation is refused while it runs.
func (i *Importer) Run(ctx context.Context, ids []string, onProgress ProgressFunc) (Report, error) {
	report := Report{Total: len(ids), StartedAt: time.Now()}

	if err := i.store.Ping(ctx); err != nil {
		report.Skipped = len(ids)
		report.FinishedAt = time.Now()
		i.log.Error("store unreachable, import aborted", zap.Error(err))
		return report, fmt.Errorf("import aborted: %w", err)
	}

	started := false
	var runErr error
	err := i.store.WithImportLock(ctx, func() error {
		started = true
		report, runErr = i.run(ctx, ids, report, onProgress)
		return nil
	})
	if !started {
		report.Skipped = len(ids)
		report.FinishedAt = time.Now()
		i.log.Warn("import refused", zap.Error(err))
		return report, fmt.Errorf("import refused: %w", err)
	}
	return report, runErr
}

func (i *Importer) run(ctx context.Context, ids []string, report Report, onProgress ProgressFunc) (Report, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	results := make(chan extracted, i.workers)
	dispatched := 0
	go func() {
		defer close(results)
		var g errgroup.Group
		g.SetLimit(i.workers)
		for _, id := range ids {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				results <- i.fetchExtract(runCtx, id)
				return nil
			})
			dispatched++
		}
		_ = g.Wait()
	}()

	// Loads outlive cancellation so a record in flight is never half written.
	loadCtx := context.WithoutCancel(ctx)
	var fatal error

	for res := range results {
		switch {
		case res.outcome != "":
			report.record(res.id, res.outcome)
		case runCtx.Err() != nil:
			report.record(res.id, OutcomeSkipped)
		default:
			outcome, err := i.load(loadCtx, res)
			report.record(res.id, outcome)
			if err != nil {
				fatal = err
				cancel(err)
			}
		}

		if onProgress != nil {
			onProgress(report.clone())
		}
	}

	// ids never handed to a worker
	report.Skipped += len(ids) - dispatched
	report.FinishedAt = time.Now()

	i.log.Info("import finished",
		zap.Int("total", report.Total),
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", report.Failed()),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
	)

	if fatal != nil {
		return report, fmt.Errorf("import aborted: %w", fatal)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (i *Importer) fetchExtract(ctx context.Context, id string) extracted {
	page, err := i.fetcher.Fetch(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return extracted{id: id, outcome: OutcomeSkipped, err: err}
		}
		i.log.Warn("fetch failed", zap.String("member_id", id), zap.Error(err))
		return extracted{id: id, outcome: OutcomeFetch, err: err}
	}

	start := time.Now()
	fields, err := parl.Extract(ctx, bytes.NewReader(page.Body))
	if err != nil {
		i.log.Warn("parse failed", zap.String("member_id", id), zap.Error(err))
		return extracted{id: id, outcome: OutcomeExtract, err: err}
	}
	logging.LogTransform(i.log.With(zap.String("member_id", id)), "extract", len(parl.FieldNames), len(fields.Present()), time.Since(start))
	if fields.IsEmpty() {
		i.log.Warn("no member fields in page", zap.String("member_id", id))
		return extracted{id: id, outcome: OutcomeExtract, err: ErrTotalExtractionFailure}
	}

	if fields.ExternalID == nil {
		i.log.Info("page has no member id, using requested id", zap.String("member_id", id))
		requested := id
		fields.ExternalID = &requested
	}

	return extracted{id: id, fields: fields}
}

// load returns the id's outcome, plus an error only when the batch must stop.
func (i *Importer) load(ctx context.Context, res extracted) (string, error) {
	_, err := i.loader.Load(ctx, res.fields)
	if err == nil {
		return OutcomeLoaded, nil
	}
	if IsValidation(err) {
		return OutcomeInvalid, nil
	}

	if pingErr := i.store.Ping(ctx); pingErr != nil {
		i.log.Error("store lost during import", zap.String("member_id", res.id), zap.Error(err))
		return OutcomeStoreFail, pingErr
	}

	i.log.Warn("load failed", zap.String("member_id", res.id), zap.Error(err))
	return OutcomeStoreFail, nil
}

// IsAborted reports whether a Run error means the store went away.
func IsAborted(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
