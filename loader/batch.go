package loader

import (
	"context"

	"github.com/IntegraSac-Oficial/entityload/contextx"
	"github.com/IntegraSac-Oficial/entityload/remote"
	"github.com/IntegraSac-Oficial/entityload/tracing"
	"golang.org/x/sync/errgroup"
)

// Request is one entry of a LoadMultipleEntities batch.
type Request struct {
	Collection remote.Collection
	Entity     string
	Filter     Filter
	Options    []LoadOption
}

// Result is the outcome of one Request: either Records or Err is set.
type Result struct {
	Entity  string
	Records []any
	Err     error
}

// OK reports whether the request succeeded.
func (r Result) OK() bool { return r.Err == nil }

// LoadMultipleEntities loads every request and returns one Result per
// request, in request order.
//
// Requests whose static priority is Critical or High are loaded first, one
// at a time, each finished before the next starts. The remaining requests
// are then loaded all at once; the scheduler's concurrency bound still
// applies to their fetches. A failing request never affects the others.
func (l *Loader) LoadMultipleEntities(ctx context.Context, reqs []Request) []Result {
	ctx, batchID := contextx.EnsureBatchID(ctx)
	ctx, span := l.tracer.StartBatch(ctx, batchID, len(reqs))

	var critical, normal []int
	for i, r := range reqs {
		if l.table.Of(r.Entity).IsCritical() {
			critical = append(critical, i)
		} else {
			normal = append(normal, i)
		}
	}
	l.logger(ctx).Debug("loading batch", "critical", len(critical), "normal", len(normal))

	results := make([]Result, len(reqs))
	for _, i := range critical {
		results[i] = l.loadOne(ctx, reqs[i])
	}

	var g errgroup.Group
	for _, i := range normal {
		g.Go(func() error {
			results[i] = l.loadOne(ctx, reqs[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		l.logger(ctx).Warn("batch finished with failures", "failed", failed, "total", len(reqs))
	}
	span.SetAttributes(tracing.AttrBatchFailed.Int(failed))
	tracing.End(span, nil)
	return results
}

func (l *Loader) loadOne(ctx context.Context, r Request) Result {
	recs, err := l.LoadEntityData(ctx, r.Collection, r.Entity, r.Filter, r.Options...)
	return Result{Entity: r.Entity, Records: recs, Err: err}
}
