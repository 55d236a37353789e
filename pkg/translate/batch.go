package translate

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Job is one expression to translate. ID is carried through for callers
// and log lines.
type Job struct {
	ID         string
	Expression string
}

// Batch translates jobs on up to workers goroutines (GOMAXPROCS if workers
// is below 1). Results come back in input order. A failing expression only
// affects its own result. When ctx is cancelled no further jobs start; the
// jobs that never ran carry the context error and Batch returns it.
func (t *Translator) Batch(ctx context.Context, jobs []Job, workers int) ([]Result, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(jobs))
	started := make([]bool, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			results[i] = t.Translate(job.Expression)
			if err := results[i].Err; err != nil {
				t.logger.Debug("batch job failed", "id", job.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i, job := range jobs {
			if !started[i] {
				results[i] = Result{Source: job.Expression, Err: err}
			}
		}
		return results, err
	}

	t.logger.Debug("batch complete", "jobs", len(jobs), "workers", workers)
	return results, nil
}
