package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/upbb/internal/aggregate"
	"github.com/roach88/upbb/internal/evaluate"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/partition"
	"github.com/roach88/upbb/internal/store"
)

// State is the lifecycle position of a Run.
type State int

const (
	StateConfigured State = iota
	StatePartitioning
	StateEvaluating
	StateAggregating
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateConfigured:   "configured",
	StatePartitioning: "partitioning",
	StateEvaluating:   "evaluating",
	StateAggregating:  "aggregating",
	StateCompleted:    "completed",
	StateFailed:       "failed",
	StateCancelled:    "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Recorder receives the raw data of a run. *store.Store implements it.
type Recorder interface {
	BeginRun(ctx context.Context, run store.Run) error
	AppendRecords(ctx context.Context, runID string, records []ir.EvaluationRecord) error
	CompleteRun(ctx context.Context, runID string, res ir.Result) error
	FailRun(ctx context.Context, runID, status, errText string) error
}

// Run is a single propagation: partition, evaluate, aggregate.
//
// A Run moves through Configured → Partitioning → Evaluating → Aggregating
// → Completed, or ends in Failed or Cancelled. No state is re-entered and
// Execute may be called once.
//
// Thread-safety: State, ID and Artifact are safe to call from any
// goroutine, including while Execute is running.
type Run struct {
	mu       sync.Mutex
	state    State
	artifact string

	id   string
	vars []ir.Quantity
	fn   ir.FunctionSpec
	cfg  Config

	logger   *slog.Logger
	ids      RunIDGenerator
	now      func() time.Time
	recorder Recorder
	progress func(done, total int64)
}

// RunOption configures a Run.
type RunOption func(*Run)

// WithLogger sets the logger for run lifecycle and evaluation output.
// Default: slog.Default().
func WithLogger(l *slog.Logger) RunOption {
	return func(r *Run) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunIDGenerator sets the source of run IDs. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) RunOption {
	return func(r *Run) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithClock sets the wall clock used for run metadata timestamps.
func WithClock(now func() time.Time) RunOption {
	return func(r *Run) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRecorder sends raw data to rec instead of a new artifact under
// Config.BasePath. The caller keeps ownership of rec. Records are sent
// whether or not Config.SaveRawData is set.
func WithRecorder(rec Recorder) RunOption {
	return func(r *Run) {
		r.recorder = rec
	}
}

// WithProgress registers a callback invoked after each sample is folded,
// in plan order, from the goroutine running Execute.
func WithProgress(fn func(done, total int64)) RunOption {
	return func(r *Run) {
		r.progress = fn
	}
}

// NewRun creates a run in state Configured.
//
// Only configuration errors are reported here. Input and method problems
// (empty input, unknown method, unsupported essence, budget) are reported
// by Execute so that the run records its Failed state.
//
// vars is copied; later changes to the caller's slice do not affect the run.
func NewRun(vars []ir.Quantity, fn ir.FunctionSpec, cfg Config, opts ...RunOption) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &RunError{Code: ErrCodeInvalidConfig, Method: cfg.Method, N: cfg.N, Err: err}
	}
	if fn.Fn == nil {
		return nil, &RunError{Code: ErrCodeInvalidConfig, Method: cfg.Method, N: cfg.N, Err: evaluate.ErrNoFunction}
	}

	r := &Run{
		state:  StateConfigured,
		vars:   append([]ir.Quantity(nil), vars...),
		fn:     fn,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
		ids:    UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.id = r.ids.Generate()
	return r, nil
}

// ID returns the run identifier.
func (r *Run) ID() string {
	return r.id
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Artifact returns the path of the raw data artifact, or "" if the run
// did not create one.
func (r *Run) Artifact() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.artifact
}

// Execute performs the propagation and returns the output enclosure.
//
// On failure the error is a *RunError wrapping the cause; no partial result
// is returned. If ctx is cancelled before evaluation finishes the error is
// a *CancelledError. A second call returns ErrRunConsumed.
func (r *Run) Execute(ctx context.Context) (ir.Result, error) {
	if !r.advance(StateConfigured, StatePartitioning) {
		return ir.Result{}, ErrRunConsumed
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "upbb.Run",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.String("run.method", string(r.cfg.Method)),
			attribute.Int("run.n", r.cfg.N),
			attribute.Int("run.variables", len(r.vars)),
			attribute.Int("run.workers", r.cfg.Workers),
		),
	)
	defer span.End()

	res, err := r.execute(ctx)

	final := StateCompleted
	switch {
	case IsCancelled(err):
		final = StateCancelled
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		r.logger.Info("run cancelled", "run", r.id, "error", err)
	case err != nil:
		final = StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("run failed", "run", r.id, "error", err)
	default:
		span.SetAttributes(
			attribute.Float64("result.lo", res.Lo),
			attribute.Float64("result.hi", res.Hi),
			attribute.Int64("result.undefined", res.Undefined),
		)
		span.SetStatus(codes.Ok, "")
		r.logger.Info("run completed",
			"run", r.id,
			"lo", res.Lo,
			"hi", res.Hi,
			"samples", res.Samples,
			"undefined", res.Undefined,
			"non_finite", res.NonFinite,
			"duration", time.Since(start),
		)
	}
	r.setState(final)
	runsTotal.WithLabelValues(final.String()).Inc()
	runDuration.WithLabelValues(string(r.cfg.Method)).Observe(time.Since(start).Seconds())

	if err != nil {
		return ir.Result{}, err
	}
	return res, nil
}

func (r *Run) execute(ctx context.Context) (ir.Result, error) {
	labels := make([]string, len(r.vars))
	for i, v := range r.vars {
		labels[i] = v.Label()
	}
	method, n := r.cfg.Method, r.cfg.N
	fail := func(code RunErrorCode, err error) error {
		return &RunError{Code: code, RunID: r.id, Method: method, N: n, Variables: labels, Err: err}
	}

	plan, err := partition.New(r.vars, partition.Config{
		Method:     r.cfg.Method,
		N:          r.cfg.N,
		Seed:       r.cfg.Seed,
		MaxSamples: r.cfg.MaxSamples,
	})
	if err != nil {
		return ir.Result{}, fail(classify(err), err)
	}
	method, n = plan.Method(), plan.N()
	plannedSamples.Observe(float64(plan.Len()))

	if arity := r.fn.Arity(); arity > 0 && arity != len(r.vars) {
		return ir.Result{}, fail(ErrCodeArityMismatch,
			fmt.Errorf("function %q takes %d parameters, got %d inputs", r.fn.Name, arity, len(r.vars)))
	}

	ev, err := evaluate.New(r.fn,
		evaluate.WithTimeout(r.cfg.Timeout),
		evaluate.WithLogger(r.logger),
	)
	if err != nil {
		return ir.Result{}, fail(ErrCodeInvalidConfig, err)
	}

	sink, err := r.openSink(ctx, plan)
	if err != nil {
		return ir.Result{}, fail(ErrCodeStorage, err)
	}
	defer sink.close()

	r.logger.Info("run starting",
		"run", r.id,
		"method", method,
		"n", n,
		"variables", labels,
		"planned", plan.Len(),
		"workers", r.cfg.Workers,
	)

	r.setState(StateEvaluating)
	agg := aggregate.New()
	emit := func(rec ir.EvaluationRecord) error {
		agg.Add(rec)
		evaluationsTotal.WithLabelValues(string(rec.Outcome.Kind)).Inc()
		return sink.add(ctx, rec)
	}

	var evaluated int64
	if r.cfg.Workers > 1 {
		evaluated, err = r.evaluateParallel(ctx, plan, ev, emit)
	} else {
		evaluated, err = r.evaluateSerial(ctx, plan, ev, emit)
	}

	if ctx.Err() != nil {
		cancelled := &CancelledError{
			RunID:     r.id,
			Evaluated: evaluated,
			Planned:   plan.Len(),
			Cause:     context.Cause(ctx),
		}
		sink.fail(ctx, store.StatusCancelled, cancelled.Error())
		return ir.Result{}, cancelled
	}
	if err == nil {
		err = sink.flush(ctx)
	}
	if err != nil {
		sink.fail(ctx, store.StatusFailed, err.Error())
		return ir.Result{}, fail(ErrCodeStorage, err)
	}

	r.setState(StateAggregating)
	res, err := agg.Result(aggregate.Meta{
		Method:    method,
		N:         n,
		Seed:      plan.Seed(),
		Variables: labels,
	})
	if err != nil {
		sink.fail(ctx, store.StatusFailed, err.Error())
		return ir.Result{}, fail(classify(err), err)
	}

	if err := sink.complete(ctx, res); err != nil {
		sink.fail(ctx, store.StatusFailed, err.Error())
		return ir.Result{}, fail(ErrCodeStorage, err)
	}
	return res, nil
}

// openSink prepares raw data persistence for the run.
func (r *Run) openSink(ctx context.Context, plan partition.Plan) (*rawSink, error) {
	sink := &rawSink{runID: r.id, size: r.cfg.BatchSize, logger: r.logger}

	switch {
	case r.recorder != nil:
		sink.rec = r.recorder
	case r.cfg.SaveRawData:
		st, err := store.Create(r.cfg.BasePath, r.id)
		if err != nil {
			return nil, err
		}
		sink.rec = st
		sink.closer = st.Close
		r.mu.Lock()
		r.artifact = st.Path()
		r.mu.Unlock()
	default:
		return sink, nil
	}

	hash, err := ir.PlanHash(plan.Variables(), plan.Method(), plan.N(), plan.Seed())
	if err != nil {
		sink.close()
		return nil, err
	}
	err = sink.rec.BeginRun(ctx, store.Run{
		ID:        r.id,
		Name:      r.cfg.OutputName,
		Model:     r.fn.Name,
		Method:    plan.Method(),
		N:         plan.N(),
		Seed:      plan.Seed(),
		Variables: plan.Variables(),
		PlanHash:  hash,
		Planned:   plan.Len(),
		CreatedAt: r.now(),
	})
	if err != nil {
		sink.close()
		return nil, err
	}
	return sink, nil
}

func (r *Run) advance(from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != from {
		return false
	}
	r.state = to
	return true
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Run) reportProgress(done, total int64) {
	if r.progress != nil {
		r.progress(done, total)
	}
}

// rawSink batches records on their way to a Recorder. With no recorder
// every method is a no-op.
type rawSink struct {
	rec    Recorder
	closer func() error
	runID  string
	size   int
	batch  []ir.EvaluationRecord
	logger *slog.Logger
}

func (s *rawSink) add(ctx context.Context, rec ir.EvaluationRecord) error {
	if s.rec == nil {
		return nil
	}
	s.batch = append(s.batch, rec)
	if len(s.batch) >= s.size {
		return s.flush(ctx)
	}
	return nil
}

func (s *rawSink) flush(ctx context.Context) error {
	if s.rec == nil || len(s.batch) == 0 {
		return nil
	}
	if err := s.rec.AppendRecords(ctx, s.runID, s.batch); err != nil {
		return err
	}
	s.batch = s.batch[:0]
	return nil
}

// fail keeps whatever was evaluated and marks the run. It runs even when
// ctx is cancelled; errors are logged because the run error takes precedence.
func (s *rawSink) fail(ctx context.Context, status, errText string) {
	if s.rec == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.flush(ctx); err != nil {
		s.logger.Error("flush raw data failed", "run", s.runID, "error", err)
	}
	if err := s.rec.FailRun(ctx, s.runID, status, errText); err != nil {
		s.logger.Error("mark run failed", "run", s.runID, "status", status, "error", err)
	}
}

func (s *rawSink) complete(ctx context.Context, res ir.Result) error {
	if s.rec == nil {
		return nil
	}
	return s.rec.CompleteRun(ctx, s.runID, res)
}

func (s *rawSink) close() {
	if s.closer == nil {
		return
	}
	if err := s.closer(); err != nil {
		s.logger.Error("close raw data store failed", "run", s.runID, "error", err)
	}
	s.closer = nil
}
