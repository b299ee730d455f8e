package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/geoloc/internal/geoloc"
	"github.com/signalsfoundry/geoloc/internal/logging"
	"github.com/signalsfoundry/geoloc/internal/observability"
	"github.com/signalsfoundry/geoloc/model"
)

// Job outcomes recorded in Summary and metrics.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Locator is the part of geoloc.Service the runner depends on.
type Locator interface {
	Locate(ctx context.Context, scanTime time.Time, md *model.Metadata, bad model.BadValues, area model.Area) (*geoloc.Geolocation, error)
}

// Summary counts job outcomes of one run.
type Summary struct {
	OK      int
	Skipped int
	Failed  int
	// FailedIDs lists the jobs that failed, in run order.
	FailedIDs []string
}

// Err returns a non-nil error when at least one job failed.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d jobs failed: %v", s.Failed, s.OK+s.Skipped+s.Failed, s.FailedIDs)
}

// Runner runs jobs one after another.
type Runner struct {
	locator Locator
	bad     model.BadValues
	log     logging.Logger
	metrics *observability.CacheCollector
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithBadValues overrides the sentinel written for off-disk pixels.
func WithBadValues(bad model.BadValues) RunnerOption {
	return func(r *Runner) { r.bad = bad }
}

// WithRunnerMetrics counts job outcomes on m.
func WithRunnerMetrics(m *observability.CacheCollector) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner returns a runner locating scenes with locator.
func NewRunner(locator Locator, log logging.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = logging.Noop()
	}
	r := &Runner{locator: locator, bad: model.DefaultBadValues(), log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every job. Scenes that cannot be produced by policy or for
// lack of coverage are skipped; other errors are counted as failures. The
// run only stops early when ctx is done, returning ctx.Err().
func (r *Runner) Run(ctx context.Context, jobs []Job) (Summary, error) {
	var sum Summary
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		outcome := r.runJob(ctx, job)
		switch outcome {
		case OutcomeOK:
			sum.OK++
		case OutcomeSkipped:
			sum.Skipped++
		default:
			sum.Failed++
			sum.FailedIDs = append(sum.FailedIDs, job.ID)
		}
		r.metrics.ObserveBatchJob(outcome)
	}
	r.log.Info(ctx, "batch finished",
		logging.Int("ok", sum.OK),
		logging.Int("skipped", sum.Skipped),
		logging.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (r *Runner) runJob(ctx context.Context, job Job) string {
	if job.ID != "" {
		ctx = logging.ContextWithJobID(ctx, job.ID)
	}
	ctx, _ = logging.EnsureJobID(ctx)
	areaID := "full_disk"
	if job.Area != nil {
		areaID = job.Area.AreaID()
	}
	ctx = logging.ContextWithFields(ctx,
		logging.String("platform", job.Metadata.Platform),
		logging.String("area", areaID),
	)
	log := r.log.With(logging.String("scene", job.Metadata.SceneID))

	start := time.Now()
	geo, err := r.locator.Locate(ctx, job.ScanTime, job.Metadata, r.bad, job.Area)
	switch {
	case err == nil && geo == nil:
		log.Warn(ctx, "job skipped: auto-generation disabled")
		return OutcomeSkipped
	case err != nil && geoloc.IsSkippable(err):
		log.Warn(ctx, "job skipped", logging.Err(err))
		return OutcomeSkipped
	case err != nil:
		log.Error(ctx, "job failed", logging.Err(err))
		return OutcomeFailed
	}
	defer geo.Close()

	fields := []logging.Field{logging.Duration("elapsed", time.Since(start))}
	if geo.Lines != nil {
		fields = append(fields, logging.Int("matched", geo.Lines.Valid()), logging.Int("pixels", geo.Lines.Len()))
	}
	log.Info(ctx, "job done", fields...)
	return OutcomeOK
}
