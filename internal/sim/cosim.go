package sim

import (
	"context"
	"errors"

	"github.com/san-kum/fmulab/internal/fmi2"
)

// runCS drives a co-simulation instance: the model's own solver advances
// between communication points, we pick the communication step and sample at
// the output grid.
func runCS(ctx context.Context, inst *fmi2.Instance, cfg Config, rec *recorder) error {
	grid := cfg.sampleGrid()
	t := cfg.StartTime

	// Shrinking the communication step, whether to land on a grid point or to
	// retry a discarded step, requires the capability flag.
	cs := inst.Description().CoSimulation
	varStep := cs != nil && cs.CanHandleVariableCommunicationStepSize

	if err := rec.sample(t); err != nil {
		return err
	}

	step := 0
	for _, target := range grid {
		if target <= t {
			continue
		}
		for t < target {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			h := cfg.StepSize
			if varStep {
				if h > cfg.MaxStep {
					h = cfg.MaxStep
				}
				if t+h > target {
					h = target - t
				}
			}

			if err := doStepWithDiscard(inst, cfg, h, varStep); err != nil {
				return StepError{Time: t, Step: step, Err: err}
			}
			t = inst.Time()
			step++
		}
		if err := rec.sample(t); err != nil {
			return err
		}
	}
	rec.result.Steps = step
	return nil
}

// doStepWithDiscard retries a discarded communication step with halved sizes
// down to the minimum step bound. Models without the variable step capability
// get no retry, their error surfaces directly.
func doStepWithDiscard(inst *fmi2.Instance, cfg Config, h float64, varStep bool) error {
	for {
		err := inst.DoStep(h)
		if err == nil {
			return nil
		}
		if !varStep || !errors.Is(err, fmi2.ErrDiscarded) {
			return err
		}
		h /= 2
		if h < cfg.MinStep {
			return err
		}
	}
}
