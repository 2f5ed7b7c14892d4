package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
	"golang.org/x/time/rate"
)

// BulkStartOpts contains configuration for starting several scans at once.
type BulkStartOpts struct {
	NumWorkers int     // Concurrent workers (default: 4, max: 10)
	RateLimit  float64 // Requests per second (default: 5)
}

// StartResult is the outcome of starting a single scan.
type StartResult struct {
	CourseID string
	Error    error
}

// BulkStartResult summarizes a bulk start.
type BulkStartResult struct {
	Total     int
	Started   int
	Failed    int
	Results   []StartResult // in completion order
	CourseIDs []string      // courses whose scan was started
}

// StartScans requests a scan for every course in ids using a worker pool.
//
// Individual failures are collected in the result; only a cancelled context aborts the whole run.
func StartScans(
	ctx context.Context,
	client services.ScanClient,
	ids []string,
	prog chan<- ProgressUpdate,
	opts BulkStartOpts,
) (*BulkStartResult, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: scan client not initialized", shared.ErrServiceUnavailable)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one course id", shared.ErrMissingArgument)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan string, len(ids))
	results := make(chan StartResult, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go startWorker(ctx, &wg, client, limiter, jobs, results)
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &BulkStartResult{Total: len(ids), Results: make([]StartResult, 0, len(ids))}
	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)
		if res.Error == nil {
			result.Started++
			result.CourseIDs = append(result.CourseIDs, res.CourseID)
		} else {
			result.Failed++
		}
		sendProgress(prog, startScanUpdate(completed, len(ids), res.CourseID, res.Error))
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// startWorker starts scans for course ids read from jobs.
func startWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	client services.ScanClient,
	limiter *rate.Limiter,
	jobs <-chan string,
	results chan<- StartResult,
) {
	defer wg.Done()

	for id := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			results <- StartResult{CourseID: id, Error: err}
			continue
		}
		results <- StartResult{CourseID: id, Error: client.StartScan(ctx, id)}
	}
}
