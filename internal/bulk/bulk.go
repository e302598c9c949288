// Package bulk runs one operation over many items with a bounded number of
// workers and collects per-item failures.
package bulk

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Operation represents a bulk operation configuration
type Operation struct {
	// Jobs bounds concurrent items; values below 1 run sequentially.
	Jobs int
	// ContinueOnError keeps going after a failed item. Otherwise no new
	// items start once one has failed.
	ContinueOnError bool
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	Skipped    int
	Errors     []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// ItemFunc is the function to execute for each item
type ItemFunc func(ctx context.Context, item string) error

// Execute runs fn on every item. Errors are collected in the Result, in
// input order; Execute itself never fails.
func (op *Operation) Execute(ctx context.Context, items []string, fn ItemFunc) *Result {
	result := &Result{TotalItems: len(items)}
	if len(items) == 0 {
		return result
	}

	jobs := op.Jobs
	if jobs < 1 {
		jobs = 1
	}

	errs := make([]error, len(items))
	ran := make([]bool, len(items))
	var (
		mu      sync.Mutex
		stopped bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, item := range items {
		mu.Lock()
		stop := stopped
		mu.Unlock()
		if stop || gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			mu.Lock()
			if stopped {
				mu.Unlock()
				return nil
			}
			ran[i] = true
			mu.Unlock()

			err := fn(gctx, item)
			if err != nil {
				mu.Lock()
				errs[i] = err
				if !op.ContinueOnError {
					stopped = true
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, item := range items {
		switch {
		case !ran[i]:
			result.Skipped++
		case errs[i] != nil:
			result.Failed++
			result.Errors = append(result.Errors, ItemError{Item: item, Error: errs[i]})
		default:
			result.Succeeded++
		}
	}
	return result
}

// Err summarizes the failures, or returns nil when every item succeeded.
func (r *Result) Err() error {
	switch len(r.Errors) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s: %w", r.Errors[0].Item, r.Errors[0].Error)
	default:
		return fmt.Errorf("%d of %d operations failed", r.Failed, r.TotalItems)
	}
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0 && r.Skipped == 0:
		fmt.Fprintf(w, "✓ All %d operations succeeded\n", r.TotalItems)
	case r.Succeeded == 0 && r.Skipped == 0:
		fmt.Fprintf(w, "✗ All %d operations failed\n", r.TotalItems)
	default:
		fmt.Fprintf(w, "⚠ Partial success: %d succeeded, %d failed, %d skipped (out of %d)\n",
			r.Succeeded, r.Failed, r.Skipped, r.TotalItems)
	}

	shown := r.Errors
	if len(shown) > 10 {
		fmt.Fprintf(w, "Showing first 10 errors (of %d):\n", len(r.Errors))
		shown = shown[:10]
	} else if len(shown) > 0 {
		fmt.Fprintf(w, "Errors:\n")
	}
	for _, e := range shown {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}
