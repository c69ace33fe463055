package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/logging"
	"github.com/san-kum/fmulab/internal/sim"
)

// Factory creates a fresh model instance for a worker, together with a
// release function. Instances are not safe for concurrent use, so each worker
// owns exactly one and resets it between runs.
type Factory func() (*fmi2.Instance, func() error, error)

// Options tunes a batch run.
type Options struct {
	// Workers caps concurrency. Zero means one worker per case, up to 8.
	Workers int
	// FailFast cancels remaining runs after the first failure.
	FailFast bool
	// Metrics, when set, receives per-run counters and durations.
	Metrics *Metrics
	// OnProgress is called after every finished run with the completed and
	// total counts. It may be called from multiple goroutines.
	OnProgress func(done, total int)

	Log logging.Logger
}

// RunResult is the outcome of a single case, in sweep order.
type RunResult struct {
	Index   int
	Case    Case
	Result  *sim.Result
	Err     error
	Elapsed time.Duration
}

// Report aggregates a finished batch.
type Report struct {
	Results []RunResult
	// Summary holds final-value statistics per recorded column over the
	// successful runs.
	Summary map[string]Stats
	Failed  int
	Elapsed time.Duration
}

// FirstError returns the error of the earliest failed case, nil if all
// succeeded.
func (r *Report) FirstError() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Run executes every case against its own instance. The base config is
// shared; each case's values overlay base.StartValues. Results come back in
// case order regardless of scheduling.
func Run(ctx context.Context, factory Factory, base sim.Config, cases []Case, opts Options) (*Report, error) {
	log := opts.Log
	if log == nil {
		log = logging.Nop{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = len(cases)
		if workers > 8 {
			workers = 8
		}
	}
	if workers > len(cases) {
		workers = len(cases)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	report := &Report{Results: make([]RunResult, len(cases))}
	jobs := make(chan int)
	var done int64
	started := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, cancel, factory, base, cases, report.Results, jobs, &done, opts, log)
		}()
	}

	for i := range cases {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	report.Elapsed = time.Since(started)
	for i := range report.Results {
		if report.Results[i].Err == nil && report.Results[i].Result == nil {
			report.Results[i].Err = ctx.Err()
		}
		if report.Results[i].Err != nil {
			report.Failed++
		}
	}
	report.Summary = summarize(report.Results)
	return report, nil
}

func worker(ctx context.Context, cancel context.CancelFunc, factory Factory, base sim.Config,
	cases []Case, results []RunResult, jobs <-chan int, done *int64, opts Options, log logging.Logger) {

	var inst *fmi2.Instance
	var release func() error
	fresh := true
	defer func() {
		if release != nil {
			if err := release(); err != nil {
				log.Warnf("release instance: %v", err)
			}
		}
	}()

	for idx := range jobs {
		if ctx.Err() != nil {
			return
		}
		if inst == nil {
			var err error
			inst, release, err = factory()
			if err != nil {
				finish(results, idx, cases[idx], nil, err, 0, done, len(cases), opts)
				if opts.FailFast {
					cancel()
				}
				continue
			}
			fresh = true
		}
		if !fresh {
			if err := inst.Reset(); err != nil {
				// A reset failure poisons the instance; rebuild it for the
				// next job and fail this one.
				log.Warnf("reset failed, discarding instance: %v", err)
				if release != nil {
					_ = release()
				}
				inst, release = nil, nil
				finish(results, idx, cases[idx], nil, err, 0, done, len(cases), opts)
				if opts.FailFast {
					cancel()
				}
				continue
			}
		}
		fresh = false

		cfg := base
		cfg.StartValues = overlay(base.StartValues, cases[idx])
		runStart := time.Now()
		res, err := sim.Simulate(ctx, inst, cfg)
		elapsed := time.Since(runStart)
		if opts.Metrics != nil {
			opts.Metrics.observe(err == nil, elapsed)
		}
		finish(results, idx, cases[idx], res, err, elapsed, done, len(cases), opts)
		if err != nil {
			log.Warnf("case %d failed: %v", idx, err)
			if opts.FailFast {
				cancel()
			}
		}
	}
}

func finish(results []RunResult, idx int, c Case, res *sim.Result, err error,
	elapsed time.Duration, done *int64, total int, opts Options) {

	results[idx] = RunResult{Index: idx, Case: c, Result: res, Err: err, Elapsed: elapsed}
	n := atomic.AddInt64(done, 1)
	if opts.OnProgress != nil {
		opts.OnProgress(int(n), total)
	}
}

func overlay(base map[string]any, c Case) map[string]any {
	merged := make(map[string]any, len(base)+len(c))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range c {
		merged[k] = v
	}
	return merged
}
