// Package sim drives FMI instances through complete simulation runs, in both
// co-simulation and model-exchange variants.
package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/san-kum/fmulab/internal/integrators"
	"github.com/san-kum/fmulab/internal/modeldesc"
)

const (
	DefaultStepSize = 0.01
	DefaultStopTime = 10.0
	DefaultMinStep  = 1e-8
	DefaultMaxStep  = 1.0
)

// Config describes one simulation run. Zero values fall back to the FMU's
// default experiment, then to the package defaults.
type Config struct {
	StartTime float64
	StopTime  float64
	// StepSize is the communication step (CS) or the nominal integrator step
	// (ME).
	StepSize  float64
	Tolerance float64
	MinStep   float64
	MaxStep   float64

	// Record selects variables to sample by name. Empty records all declared
	// outputs.
	Record []string
	// SampleTimes replaces the uniform output grid with explicit timestamps.
	SampleTimes []float64
	// InitialState overrides the continuous state vector after
	// initialization (ME only).
	InitialState []float64
	// StartValues are applied before entering initialization mode, keyed by
	// variable name.
	StartValues map[string]any
	// Integrator advances ME states. Defaults to RK4.
	Integrator integrators.Integrator
}

// withDefaults resolves zero fields against the descriptor's default
// experiment.
func (c Config) withDefaults(md *modeldesc.ModelDescription) Config {
	exp := md.DefaultExperiment
	if c.StartTime == 0 && exp != nil && exp.StartTime != nil {
		c.StartTime = *exp.StartTime
	}
	if c.StopTime == 0 {
		if exp != nil && exp.StopTime != nil {
			c.StopTime = *exp.StopTime
		} else {
			c.StopTime = DefaultStopTime
		}
	}
	if c.StepSize == 0 {
		if exp != nil && exp.StepSize != nil {
			c.StepSize = *exp.StepSize
		} else {
			c.StepSize = DefaultStepSize
		}
	}
	if c.Tolerance == 0 && exp != nil && exp.Tolerance != nil {
		c.Tolerance = *exp.Tolerance
	}
	if c.MinStep == 0 {
		c.MinStep = DefaultMinStep
	}
	if c.MaxStep == 0 {
		c.MaxStep = DefaultMaxStep
	}
	if c.Integrator == nil {
		c.Integrator = integrators.NewRK4()
	}
	return c
}

func (c Config) validate() error {
	if c.StepSize <= 0 {
		return fmt.Errorf("sim: step size must be positive, got %g", c.StepSize)
	}
	if c.StopTime <= c.StartTime {
		return fmt.Errorf("sim: stop time %g must exceed start time %g", c.StopTime, c.StartTime)
	}
	if c.MinStep <= 0 || c.MaxStep < c.MinStep {
		return fmt.Errorf("sim: invalid step bounds [%g, %g]", c.MinStep, c.MaxStep)
	}
	if len(c.SampleTimes) > 0 {
		if !sort.Float64sAreSorted(c.SampleTimes) {
			return fmt.Errorf("sim: sample times must be ascending")
		}
		if c.SampleTimes[0] < c.StartTime || c.SampleTimes[len(c.SampleTimes)-1] > c.StopTime {
			return fmt.Errorf("sim: sample times must lie within [%g, %g]", c.StartTime, c.StopTime)
		}
	}
	return nil
}

// sampleGrid returns the output timestamps for this run.
func (c Config) sampleGrid() []float64 {
	if len(c.SampleTimes) > 0 {
		grid := make([]float64, len(c.SampleTimes))
		copy(grid, c.SampleTimes)
		return grid
	}
	n := int((c.StopTime-c.StartTime)/c.StepSize + 0.5)
	grid := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		t := c.StartTime + float64(i)*c.StepSize
		if t > c.StopTime {
			t = c.StopTime
		}
		grid = append(grid, t)
	}
	if grid[len(grid)-1] < c.StopTime {
		grid = append(grid, c.StopTime)
	}
	return grid
}

// Result holds the sampled trajectory of one run.
type Result struct {
	Columns []string
	Times   []float64
	// Values is row-major: Values[i][j] is column j at Times[i]. Boolean and
	// Integer variables are widened to float64.
	Values  [][]float64
	Steps   int
	Elapsed time.Duration
}

// Column returns the sampled series for a recorded variable.
func (r *Result) Column(name string) ([]float64, bool) {
	for j, col := range r.Columns {
		if col != name {
			continue
		}
		series := make([]float64, len(r.Values))
		for i, row := range r.Values {
			series[i] = row[j]
		}
		return series, true
	}
	return nil, false
}

// Final returns the last sampled row keyed by column name.
func (r *Result) Final() map[string]float64 {
	if len(r.Values) == 0 {
		return nil
	}
	last := r.Values[len(r.Values)-1]
	final := make(map[string]float64, len(r.Columns))
	for j, col := range r.Columns {
		final[col] = last[j]
	}
	return final
}

// StepError reports a failure at a specific point of the run.
type StepError struct {
	Time float64
	Step int
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.6f): %v", e.Step, e.Time, e.Err)
}

func (e StepError) Unwrap() error { return e.Err }
