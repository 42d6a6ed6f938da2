package broker

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Runner is a long-lived loop that returns nil once ctx is done
type Runner interface {
	Run(ctx context.Context) error
}

// RunAll runs every runner until ctx is done. The first runner to fail
// cancels the others and its error is returned once all have stopped.
func RunAll(ctx context.Context, runners ...Runner) error {
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	for _, r := range runners {
		p.Go(r.Run)
	}
	return p.Wait()
}
