package sim

import (
	"context"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/integrators"
)

// meSystem adapts an instance to the integrators.System interface. Every
// derivative evaluation pushes time and state into the model first.
type meSystem struct {
	inst *fmi2.Instance
}

func (s meSystem) Derivatives(t float64, x, dx []float64) error {
	if err := s.inst.SetTime(t); err != nil {
		return err
	}
	if err := s.inst.SetContinuousStates(x); err != nil {
		return err
	}
	return s.inst.Derivatives(dx)
}

// runME drives a model-exchange instance: our integrator owns time stepping,
// the model supplies derivatives and flags events.
func runME(ctx context.Context, inst *fmi2.Instance, cfg Config, rec *recorder) error {
	info, err := eventIteration(inst)
	if err != nil {
		return err
	}
	if info.TerminateSimulation {
		return nil
	}
	if err := inst.EnterContinuousTimeMode(); err != nil {
		return err
	}
	if cfg.InitialState != nil {
		if err := inst.SetContinuousStates(cfg.InitialState); err != nil {
			return err
		}
	}

	x, err := inst.ContinuousStates()
	if err != nil {
		return err
	}

	nz := inst.NumEventIndicators()
	z := make([]float64, nz)
	zNew := make([]float64, nz)
	if nz > 0 {
		if err := inst.EventIndicators(z); err != nil {
			return err
		}
	}

	sys := meSystem{inst: inst}
	adaptive, isAdaptive := cfg.Integrator.(integrators.Adaptive)
	useAdaptive := isAdaptive && cfg.Tolerance > 0

	t := cfg.StartTime
	if err := rec.sample(t); err != nil {
		return err
	}

	dt := cfg.StepSize
	step := 0
	for _, target := range cfg.sampleGrid() {
		if target <= t {
			continue
		}
		for t < target {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			// A time event at or before the current time is handled in
			// place; stepping toward it would stall the loop.
			if info.NextEventTimeDefined && info.NextEventTime <= t {
				info, err = handleEvent(inst)
				if err != nil {
					return StepError{Time: t, Step: step, Err: err}
				}
				if info.TerminateSimulation {
					rec.result.Steps = step
					return rec.sample(t)
				}
				x, err = inst.ContinuousStates()
				if err != nil {
					return err
				}
				if nz > 0 {
					if err := inst.EventIndicators(z); err != nil {
						return err
					}
				}
			}

			h := dt
			if h > cfg.MaxStep {
				h = cfg.MaxStep
			}
			if info.NextEventTimeDefined && t+h > info.NextEventTime {
				if eh := info.NextEventTime - t; eh > 0 {
					h = eh
				}
			}
			if t+h > target {
				h = target - t
			}

			var xNew []float64
			if useAdaptive {
				var dtNext float64
				xNew, dtNext, err = adaptive.StepAdaptive(sys, t, x, h, cfg.Tolerance)
				if err == nil {
					dt = clamp(dtNext, cfg.MinStep, cfg.MaxStep)
				}
			} else {
				xNew, err = cfg.Integrator.Step(sys, t, x, h)
			}
			if err != nil {
				return StepError{Time: t, Step: step, Err: err}
			}

			t += h
			if err := inst.SetTime(t); err != nil {
				return err
			}
			if err := inst.SetContinuousStates(xNew); err != nil {
				return err
			}

			stepEvent, terminate, err := inst.CompletedIntegratorStep()
			if err != nil {
				return StepError{Time: t, Step: step, Err: err}
			}
			if terminate {
				rec.result.Steps = step
				return rec.sample(t)
			}

			stateEvent := false
			if nz > 0 {
				if err := inst.EventIndicators(zNew); err != nil {
					return err
				}
				stateEvent = signChange(z, zNew)
			}
			timeEvent := info.NextEventTimeDefined && t >= info.NextEventTime

			if stepEvent || stateEvent || timeEvent {
				info, err = handleEvent(inst)
				if err != nil {
					return StepError{Time: t, Step: step, Err: err}
				}
				if info.TerminateSimulation {
					rec.result.Steps = step
					return rec.sample(t)
				}
				x, err = inst.ContinuousStates()
				if err != nil {
					return err
				}
				if nz > 0 {
					if err := inst.EventIndicators(z); err != nil {
						return err
					}
				}
			} else {
				x = xNew
				copy(z, zNew)
			}
			step++
		}
		if err := rec.sample(t); err != nil {
			return err
		}
	}
	rec.result.Steps = step
	return nil
}

// handleEvent runs the event-mode iteration and resumes continuous time.
func handleEvent(inst *fmi2.Instance) (fmi2.EventInfo, error) {
	if err := inst.EnterEventMode(); err != nil {
		return fmi2.EventInfo{}, err
	}
	info, err := eventIteration(inst)
	if err != nil {
		return info, err
	}
	if info.TerminateSimulation {
		return info, nil
	}
	return info, inst.EnterContinuousTimeMode()
}

// eventIteration calls NewDiscreteStates until the model stops asking for
// another pass.
func eventIteration(inst *fmi2.Instance) (fmi2.EventInfo, error) {
	for {
		info, err := inst.NewDiscreteStates()
		if err != nil {
			return info, err
		}
		if info.TerminateSimulation || !info.NewDiscreteStatesNeeded {
			return info, nil
		}
	}
}

func signChange(prev, cur []float64) bool {
	for i := range cur {
		if prev[i] > 0 && cur[i] <= 0 || prev[i] < 0 && cur[i] >= 0 || prev[i] == 0 && cur[i] != 0 {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
