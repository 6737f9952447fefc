// Package pipeline runs the linkage passes for several countries at once.
// Each country gets one goroutine; its passes run in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lexlink/pkg/common"
	"github.com/OFFIS-RIT/lexlink/pkg/graph"
	"github.com/OFFIS-RIT/lexlink/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Operation selects the passes to run.
type Operation string

const (
	// Run resolves, aggregates and then reconciles.
	Run Operation = "run"
	// Resolve resolves edges and recomputes metrics.
	Resolve Operation = "resolve"
	// Reconcile merges duplicate records.
	Reconcile Operation = "reconcile"
)

var ErrUnknownOperation = errors.New("unknown operation")

func ParseOperation(s string) (Operation, error) {
	switch op := Operation(strings.ToLower(strings.TrimSpace(s))); op {
	case Run, Resolve, Reconcile:
		return op, nil
	case "":
		return Run, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
	}
}

// Result is the outcome for one country. Reports are nil for passes that
// did not run.
type Result struct {
	Country   common.Country
	Run       *graph.RunReport
	Reconcile *graph.ReconcileReport
	Err       error
}

// Passes is implemented by graph.GraphClient's runner and reconciler.
type Passes interface {
	Run(ctx context.Context, c common.Country) (graph.RunReport, error)
	Reconcile(ctx context.Context, c common.Country) (graph.ReconcileReport, error)
}

type clientPasses struct {
	*graph.Runner
	*graph.Reconciler
}

// FromClient adapts a graph client.
func FromClient(c *graph.GraphClient) Passes {
	return clientPasses{Runner: c.Runner, Reconciler: c.Reconciler}
}

// Execute runs op for every country in parallel. A failing country does not
// stop the others; the returned error joins all country errors.
func Execute(ctx context.Context, passes Passes, countries []common.Country, op Operation) ([]Result, error) {
	results := make([]Result, len(countries))
	var mu sync.Mutex
	var errs []error

	var g errgroup.Group
	for i, c := range countries {
		g.Go(func() error {
			res := execute(ctx, passes, c, op)
			results[i] = res
			if res.Err != nil {
				logger.Error("[Pipeline] Country failed", "country", c, "operation", op, "err", res.Err)
				mu.Lock()
				errs = append(errs, res.Err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func execute(ctx context.Context, passes Passes, c common.Country, op Operation) Result {
	res := Result{Country: c}
	if op == Run || op == Resolve {
		report, err := passes.Run(ctx, c)
		res.Run = &report
		if err != nil {
			res.Err = err
			return res
		}
		if report.Stopped {
			return res
		}
	}
	if op == Run || op == Reconcile {
		if ctx.Err() != nil {
			return res
		}
		report, err := passes.Reconcile(ctx, c)
		res.Reconcile = &report
		res.Err = err
	}
	return res
}
