package sim

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/san-kum/fmulab/internal/fmi2"
)

// Simulate runs one complete experiment on an instantiated model: setup,
// start values, initialization, the mode-specific stepping loop, terminate.
// The instance must be freshly instantiated or reset.
func Simulate(ctx context.Context, inst *fmi2.Instance, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults(inst.Description())
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	started := time.Now()

	var tolerance *float64
	if cfg.Tolerance > 0 {
		tolerance = &cfg.Tolerance
	}
	stop := cfg.StopTime
	if err := inst.SetupExperiment(cfg.StartTime, &stop, tolerance); err != nil {
		return nil, err
	}

	if len(cfg.StartValues) > 0 {
		names := make([]string, 0, len(cfg.StartValues))
		for name := range cfg.StartValues {
			names = append(names, name)
		}
		sort.Strings(names)
		values := make([]any, len(names))
		for i, name := range names {
			values[i] = cfg.StartValues[name]
		}
		if err := inst.Set(names, values); err != nil {
			return nil, fmt.Errorf("sim: apply start values: %w", err)
		}
	}

	if err := inst.EnterInitializationMode(); err != nil {
		return nil, err
	}
	if err := inst.ExitInitializationMode(); err != nil {
		return nil, err
	}

	rec, err := newRecorder(inst, cfg.Record)
	if err != nil {
		return nil, err
	}

	switch inst.Kind() {
	case fmi2.CoSimulation:
		err = runCS(ctx, inst, cfg, rec)
	case fmi2.ModelExchange:
		err = runME(ctx, inst, cfg, rec)
	}
	if err != nil {
		return rec.result, err
	}

	if err := inst.Terminate(); err != nil {
		return rec.result, err
	}

	rec.result.Elapsed = time.Since(started)
	return rec.result, nil
}
