// Package refmodel provides in-process reference models implementing the
// fmi2.Backend interface. They back unit tests and the demo command without
// requiring a native FMU.
package refmodel

import (
	"fmt"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/modeldesc"
)

// csSubsteps is the fixed number of internal Euler substeps a DoStep call
// uses to advance its communication interval.
const csSubsteps = 16

type varTable struct {
	reals   map[uint32]*float64
	ints    map[uint32]*int32
	bools   map[uint32]*bool
	strings map[uint32]*string
}

func newVarTable() varTable {
	return varTable{
		reals:   make(map[uint32]*float64),
		ints:    make(map[uint32]*int32),
		bools:   make(map[uint32]*bool),
		strings: make(map[uint32]*string),
	}
}

// Backend is a generic in-process model instance. Concrete models configure
// the derivative, indicator and event hooks.
type Backend struct {
	name string
	md   *modeldesc.ModelDescription
	vars varTable

	nx int
	nz int

	// deriv fills dx with the state derivatives at (t, x).
	deriv func(t float64, x, dx []float64)
	// indic fills z with the event indicators at (t, x). Nil when nz == 0.
	indic func(t float64, x, z []float64)
	// onEvent mutates x at an event instant and reports whether the
	// continuous states changed. Nil when the model has no events.
	onEvent func(t float64, x []float64) bool
	// reset restores parameter and state defaults.
	reset func(b *Backend)
	// initStates derives the initial state vector from current start values.
	initStates func(b *Backend) []float64
	// syncOutputs copies x back into the output variables.
	syncOutputs func(b *Backend, x []float64)

	t            float64
	x            []float64
	zPrev        []float64
	pendingEvent bool
	freed        bool
}

// Description returns the model's descriptor, the same structure a real FMU
// would carry in its modelDescription.xml.
func (b *Backend) Description() *modeldesc.ModelDescription { return b.md }

func (b *Backend) SetupExperiment(_ bool, _, startTime float64, _ bool, _ float64) fmi2.Status {
	b.t = startTime
	return fmi2.StatusOK
}

func (b *Backend) EnterInitializationMode() fmi2.Status { return fmi2.StatusOK }

func (b *Backend) ExitInitializationMode() fmi2.Status {
	b.x = b.initStates(b)
	b.syncOutputs(b, b.x)
	if b.nz > 0 {
		b.zPrev = make([]float64, b.nz)
		b.indic(b.t, b.x, b.zPrev)
	}
	return fmi2.StatusOK
}

func (b *Backend) Terminate() fmi2.Status { return fmi2.StatusOK }

func (b *Backend) Reset() fmi2.Status {
	b.reset(b)
	b.t = 0
	b.x = nil
	b.zPrev = nil
	b.pendingEvent = false
	return fmi2.StatusOK
}

func (b *Backend) FreeInstance() { b.freed = true }

func (b *Backend) GetReal(vrs []uint32, values []float64) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.reals[vr]
		if !ok {
			return fmi2.StatusError
		}
		values[n] = *p
	}
	return fmi2.StatusOK
}

func (b *Backend) SetReal(vrs []uint32, values []float64) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.reals[vr]
		if !ok {
			return fmi2.StatusError
		}
		*p = values[n]
	}
	return fmi2.StatusOK
}

func (b *Backend) GetInteger(vrs []uint32, values []int32) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.ints[vr]
		if !ok {
			return fmi2.StatusError
		}
		values[n] = *p
	}
	return fmi2.StatusOK
}

func (b *Backend) SetInteger(vrs []uint32, values []int32) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.ints[vr]
		if !ok {
			return fmi2.StatusError
		}
		*p = values[n]
	}
	return fmi2.StatusOK
}

func (b *Backend) GetBoolean(vrs []uint32, values []bool) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.bools[vr]
		if !ok {
			return fmi2.StatusError
		}
		values[n] = *p
	}
	return fmi2.StatusOK
}

func (b *Backend) SetBoolean(vrs []uint32, values []bool) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.bools[vr]
		if !ok {
			return fmi2.StatusError
		}
		*p = values[n]
	}
	return fmi2.StatusOK
}

func (b *Backend) GetString(vrs []uint32, values []string) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.strings[vr]
		if !ok {
			return fmi2.StatusError
		}
		values[n] = *p
	}
	return fmi2.StatusOK
}

func (b *Backend) SetString(vrs []uint32, values []string) fmi2.Status {
	for n, vr := range vrs {
		p, ok := b.vars.strings[vr]
		if !ok {
			return fmi2.StatusError
		}
		*p = values[n]
	}
	return fmi2.StatusOK
}

// DoStep advances the communication interval with fixed Euler substeps,
// checking indicators between substeps so bounce-style events land inside the
// interval.
func (b *Backend) DoStep(currentTime, stepSize float64, _ bool) fmi2.Status {
	if stepSize <= 0 {
		return fmi2.StatusDiscard
	}
	h := stepSize / csSubsteps
	t := currentTime
	dx := make([]float64, b.nx)
	for s := 0; s < csSubsteps; s++ {
		b.deriv(t, b.x, dx)
		for j := range b.x {
			b.x[j] += h * dx[j]
		}
		t += h
		if b.nz > 0 {
			z := make([]float64, b.nz)
			b.indic(t, b.x, z)
			if signChanged(b.zPrev, z) && b.onEvent != nil {
				b.onEvent(t, b.x)
				b.indic(t, b.x, z)
			}
			copy(b.zPrev, z)
		}
	}
	b.t = currentTime + stepSize
	b.syncOutputs(b, b.x)
	return fmi2.StatusOK
}

func signChanged(prev, cur []float64) bool {
	for i := range cur {
		if prev[i] > 0 && cur[i] <= 0 || prev[i] < 0 && cur[i] >= 0 || prev[i] == 0 && cur[i] != 0 {
			return true
		}
	}
	return false
}

func (b *Backend) SetTime(t float64) fmi2.Status {
	b.t = t
	return fmi2.StatusOK
}

func (b *Backend) SetContinuousStates(x []float64) fmi2.Status {
	if len(x) != b.nx {
		return fmi2.StatusError
	}
	copy(b.x, x)
	b.syncOutputs(b, b.x)
	return fmi2.StatusOK
}

func (b *Backend) GetContinuousStates(x []float64) fmi2.Status {
	if len(x) != b.nx {
		return fmi2.StatusError
	}
	copy(x, b.x)
	return fmi2.StatusOK
}

func (b *Backend) GetDerivatives(dx []float64) fmi2.Status {
	if len(dx) != b.nx {
		return fmi2.StatusError
	}
	b.deriv(b.t, b.x, dx)
	return fmi2.StatusOK
}

func (b *Backend) GetEventIndicators(z []float64) fmi2.Status {
	if len(z) != b.nz {
		return fmi2.StatusError
	}
	if b.indic != nil {
		b.indic(b.t, b.x, z)
	}
	return fmi2.StatusOK
}

func (b *Backend) EnterEventMode() fmi2.Status {
	b.pendingEvent = true
	return fmi2.StatusOK
}

func (b *Backend) NewDiscreteStates(info *fmi2.EventInfo) fmi2.Status {
	*info = fmi2.EventInfo{}
	if b.pendingEvent && b.onEvent != nil {
		info.ValuesOfContinuousStatesChanged = b.onEvent(b.t, b.x)
		b.syncOutputs(b, b.x)
	}
	b.pendingEvent = false
	return fmi2.StatusOK
}

func (b *Backend) EnterContinuousTimeMode() fmi2.Status { return fmi2.StatusOK }

func (b *Backend) CompletedIntegratorStep(_ bool) (bool, bool, fmi2.Status) {
	return false, false, fmi2.StatusOK
}

// Instantiate builds an fmi2.Instance over a named reference model. Known
// models: spring_mass, vanderpol, bouncing_ball.
func Instantiate(instanceName, model string, kind fmi2.Kind, opts ...fmi2.Option) (*fmi2.Instance, error) {
	var b *Backend
	switch model {
	case "spring_mass":
		b = NewSpringMass()
	case "vanderpol":
		b = NewVanDerPol()
	case "bouncing_ball":
		b = NewBouncingBall()
	default:
		return nil, fmt.Errorf("refmodel: unknown model %q", model)
	}
	return fmi2.NewInstance(instanceName, kind, b.md, b, opts...), nil
}

// Models lists the reference model names Instantiate accepts.
func Models() []string {
	return []string{"bouncing_ball", "spring_mass", "vanderpol"}
}
