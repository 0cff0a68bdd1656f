package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/upbb/internal/evaluate"
	"github.com/roach88/upbb/internal/ir"
	"github.com/roach88/upbb/internal/partition"
)

// windowPerWorker bounds how far evaluation may run ahead of the next
// record in plan order.
const windowPerWorker = 4

// emitFunc consumes one record. Records always arrive in ascending index
// order with no gaps.
type emitFunc func(ir.EvaluationRecord) error

// evaluateSerial evaluates the plan on the calling goroutine.
//
// Cancellation is checked between samples. A record produced after ctx was
// cancelled is not emitted: its outcome may reflect the cancellation rather
// than the model. Returns the number of records emitted.
func (r *Run) evaluateSerial(ctx context.Context, plan partition.Plan, ev *evaluate.Evaluator, emit emitFunc) (int64, error) {
	total := plan.Len()
	var done int64
	for idx, pt := range plan.Points() {
		if ctx.Err() != nil {
			return done, nil
		}
		rec := ev.Evaluate(ctx, idx, pt)
		if ctx.Err() != nil {
			return done, nil
		}
		if err := emit(rec); err != nil {
			return done, err
		}
		done++
		r.reportProgress(done, total)
	}
	return done, nil
}

// evaluateParallel evaluates the plan on r.cfg.Workers goroutines.
//
// One producer walks the plan in order, workers evaluate, and the calling
// goroutine reassembles records into plan order before emitting them, so
// the aggregator and the store see exactly the serial sequence.
//
// At most Workers*windowPerWorker samples are in flight or buffered at any
// time. The producer acquires a slot per sample in index order and the
// collector releases it only when that sample is emitted, which keeps the
// next expected index always in flight.
func (r *Run) evaluateParallel(ctx context.Context, plan partition.Plan, ev *evaluate.Evaluator, emit emitFunc) (int64, error) {
	type job struct {
		idx int64
		pt  ir.SamplePoint
	}

	workers := r.cfg.Workers
	window := workers * windowPerWorker
	total := plan.Len()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	jobs := make(chan job)
	results := make(chan ir.EvaluationRecord, window)
	slots := make(chan struct{}, window)

	g.Go(func() error {
		defer close(jobs)
		for idx, pt := range plan.Points() {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			select {
			case jobs <- job{idx: idx, pt: pt}:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for j := range jobs {
				// Never blocks: each outstanding job holds one of window slots.
				results <- ev.Evaluate(gctx, j.idx, j.pt)
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	queue := newReorderQueue()
	var (
		done    int64
		emitErr error
	)
	for rec := range results {
		if emitErr != nil || ctx.Err() != nil {
			continue // drain so workers can exit
		}
		for _, ready := range queue.Push(rec) {
			if ctx.Err() != nil {
				break
			}
			if err := emit(ready); err != nil {
				emitErr = err
				stop()
				break
			}
			done++
			<-slots
			r.reportProgress(done, total)
		}
	}

	if err := g.Wait(); err != nil && emitErr == nil {
		emitErr = err
	}
	return done, emitErr
}
