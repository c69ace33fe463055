package fmi2

import (
	"fmt"

	"github.com/san-kum/fmulab/internal/logging"
	"github.com/san-kum/fmulab/internal/modeldesc"
)

// Mode is the instance's position in the FMI 2.0 state machine.
type Mode int

const (
	Instantiated Mode = iota
	InitializationMode
	StepMode           // co-simulation, after initialization
	EventMode          // model exchange
	ContinuousTimeMode // model exchange
	Terminated
	Freed
)

func (m Mode) String() string {
	switch m {
	case Instantiated:
		return "instantiated"
	case InitializationMode:
		return "initialization"
	case StepMode:
		return "step"
	case EventMode:
		return "event"
	case ContinuousTimeMode:
		return "continuous-time"
	case Terminated:
		return "terminated"
	case Freed:
		return "freed"
	}
	return "unknown"
}

// Instance drives one model instance through the FMI call-order state
// machine, validating every operation against the current mode and the
// descriptor before delegating to the backend. Instances are not safe for
// concurrent use.
type Instance struct {
	name string
	kind Kind
	md   *modeldesc.ModelDescription
	b    Backend
	log  logging.Logger

	mode      Mode
	time      float64
	setupDone bool
}

// Option configures an Instance.
type Option func(*Instance)

// WithLogger sets the logger warnings and trace output go to.
func WithLogger(log logging.Logger) Option {
	return func(i *Instance) { i.log = log }
}

// NewInstance wraps an already-instantiated backend. The caller obtains the
// backend from the binding package (native FMU) or the refmodel package.
func NewInstance(name string, kind Kind, md *modeldesc.ModelDescription, b Backend, opts ...Option) *Instance {
	inst := &Instance{
		name: name,
		kind: kind,
		md:   md,
		b:    b,
		log:  logging.Nop{},
		mode: Instantiated,
	}
	for _, o := range opts {
		o(inst)
	}
	return inst
}

func (i *Instance) Name() string                             { return i.name }
func (i *Instance) Kind() Kind                               { return i.kind }
func (i *Instance) Mode() Mode                               { return i.mode }
func (i *Instance) Time() float64                            { return i.time }
func (i *Instance) Description() *modeldesc.ModelDescription { return i.md }

// NumContinuousStates reports the length of the continuous state vector
// declared by the model structure.
func (i *Instance) NumContinuousStates() int {
	if i.md.ModelStructure == nil {
		return 0
	}
	return len(i.md.ModelStructure.Derivatives)
}

// NumEventIndicators reports the declared event indicator count.
func (i *Instance) NumEventIndicators() int {
	return i.md.NumberOfEventIndicators
}

func (i *Instance) illegal(op string) error {
	return fmt.Errorf("%s in mode %s: %w", op, i.mode, ErrIllegalCall)
}

func (i *Instance) check(op string, st Status) error {
	if st == StatusWarning {
		i.log.Warnf("%s: model %s reported warning", op, i.name)
	}
	if st == StatusFatal {
		i.mode = Terminated
	}
	return statusErr(op, st)
}

// SetupExperiment communicates the experiment bounds. Legal only before
// initialization mode is entered.
func (i *Instance) SetupExperiment(startTime float64, stopTime, tolerance *float64) error {
	if i.mode != Instantiated {
		return i.illegal("SetupExperiment")
	}
	var tol, stop float64
	if tolerance != nil {
		tol = *tolerance
	}
	if stopTime != nil {
		stop = *stopTime
	}
	if err := i.check("SetupExperiment", i.b.SetupExperiment(tolerance != nil, tol, startTime, stopTime != nil, stop)); err != nil {
		return err
	}
	i.time = startTime
	i.setupDone = true
	return nil
}

// EnterInitializationMode transitions to initialization mode. SetupExperiment
// must have been called first.
func (i *Instance) EnterInitializationMode() error {
	if i.mode != Instantiated {
		return i.illegal("EnterInitializationMode")
	}
	if !i.setupDone {
		return fmt.Errorf("EnterInitializationMode before SetupExperiment: %w", ErrIllegalCall)
	}
	if err := i.check("EnterInitializationMode", i.b.EnterInitializationMode()); err != nil {
		return err
	}
	i.mode = InitializationMode
	return nil
}

// ExitInitializationMode finishes initialization. Co-simulation instances
// move to step mode; model-exchange instances move to event mode, where the
// driver iterates discrete states before entering continuous time.
func (i *Instance) ExitInitializationMode() error {
	if i.mode != InitializationMode {
		return i.illegal("ExitInitializationMode")
	}
	if err := i.check("ExitInitializationMode", i.b.ExitInitializationMode()); err != nil {
		return err
	}
	if i.kind == CoSimulation {
		i.mode = StepMode
	} else {
		i.mode = EventMode
	}
	return nil
}

// Terminate ends the simulation run.
func (i *Instance) Terminate() error {
	switch i.mode {
	case InitializationMode, StepMode, EventMode, ContinuousTimeMode:
	default:
		return i.illegal("Terminate")
	}
	err := i.check("Terminate", i.b.Terminate())
	i.mode = Terminated
	return err
}

// Reset returns the instance to its freshly-instantiated state so it can be
// reused for another run.
func (i *Instance) Reset() error {
	if i.mode == Freed {
		return i.illegal("Reset")
	}
	if err := i.check("Reset", i.b.Reset()); err != nil {
		return err
	}
	i.mode = Instantiated
	i.setupDone = false
	i.time = 0
	return nil
}

// Close frees the backend instance. Safe to call more than once.
func (i *Instance) Close() {
	if i.mode == Freed {
		return
	}
	i.b.FreeInstance()
	i.mode = Freed
}

// DoStep advances a co-simulation instance by one communication step.
func (i *Instance) DoStep(stepSize float64) error {
	if i.kind != CoSimulation || i.mode != StepMode {
		return i.illegal("DoStep")
	}
	if stepSize <= 0 {
		return fmt.Errorf("DoStep: step size must be positive, got %g", stepSize)
	}
	if err := i.check("DoStep", i.b.DoStep(i.time, stepSize, true)); err != nil {
		return err
	}
	i.time += stepSize
	return nil
}

// --- model exchange ---

func (i *Instance) inME(op string) error {
	if i.kind != ModelExchange {
		return i.illegal(op)
	}
	if i.mode != EventMode && i.mode != ContinuousTimeMode {
		return i.illegal(op)
	}
	return nil
}

// SetTime communicates a new independent-variable value to the model.
func (i *Instance) SetTime(t float64) error {
	if err := i.inME("SetTime"); err != nil {
		return err
	}
	if err := i.check("SetTime", i.b.SetTime(t)); err != nil {
		return err
	}
	i.time = t
	return nil
}

// SetContinuousStates writes the continuous state vector.
func (i *Instance) SetContinuousStates(x []float64) error {
	if i.kind != ModelExchange || i.mode != ContinuousTimeMode {
		return i.illegal("SetContinuousStates")
	}
	if len(x) != i.NumContinuousStates() {
		return fmt.Errorf("SetContinuousStates: expected %d states, got %d", i.NumContinuousStates(), len(x))
	}
	return i.check("SetContinuousStates", i.b.SetContinuousStates(x))
}

// ContinuousStates reads the continuous state vector.
func (i *Instance) ContinuousStates() ([]float64, error) {
	if err := i.inME("GetContinuousStates"); err != nil {
		return nil, err
	}
	x := make([]float64, i.NumContinuousStates())
	if err := i.check("GetContinuousStates", i.b.GetContinuousStates(x)); err != nil {
		return nil, err
	}
	return x, nil
}

// Derivatives evaluates the state derivatives at the current time and state.
func (i *Instance) Derivatives(dx []float64) error {
	if err := i.inME("GetDerivatives"); err != nil {
		return err
	}
	if len(dx) != i.NumContinuousStates() {
		return fmt.Errorf("GetDerivatives: expected %d states, got %d", i.NumContinuousStates(), len(dx))
	}
	return i.check("GetDerivatives", i.b.GetDerivatives(dx))
}

// EventIndicators reads the event indicator vector; the driver watches it for
// sign changes.
func (i *Instance) EventIndicators(z []float64) error {
	if err := i.inME("GetEventIndicators"); err != nil {
		return err
	}
	return i.check("GetEventIndicators", i.b.GetEventIndicators(z))
}

// EnterEventMode switches from continuous time to event handling.
func (i *Instance) EnterEventMode() error {
	if i.kind != ModelExchange || i.mode != ContinuousTimeMode {
		return i.illegal("EnterEventMode")
	}
	if err := i.check("EnterEventMode", i.b.EnterEventMode()); err != nil {
		return err
	}
	i.mode = EventMode
	return nil
}

// NewDiscreteStates performs one event iteration.
func (i *Instance) NewDiscreteStates() (EventInfo, error) {
	if i.kind != ModelExchange || i.mode != EventMode {
		return EventInfo{}, i.illegal("NewDiscreteStates")
	}
	var info EventInfo
	if err := i.check("NewDiscreteStates", i.b.NewDiscreteStates(&info)); err != nil {
		return EventInfo{}, err
	}
	return info, nil
}

// EnterContinuousTimeMode resumes continuous integration after event handling.
func (i *Instance) EnterContinuousTimeMode() error {
	if i.kind != ModelExchange || i.mode != EventMode {
		return i.illegal("EnterContinuousTimeMode")
	}
	if err := i.check("EnterContinuousTimeMode", i.b.EnterContinuousTimeMode()); err != nil {
		return err
	}
	i.mode = ContinuousTimeMode
	return nil
}

// CompletedIntegratorStep tells the model an accepted integrator step
// finished. It reports whether the model requests event mode or termination.
func (i *Instance) CompletedIntegratorStep() (enterEventMode, terminate bool, err error) {
	if i.kind != ModelExchange || i.mode != ContinuousTimeMode {
		return false, false, i.illegal("CompletedIntegratorStep")
	}
	enterEventMode, terminate, st := i.b.CompletedIntegratorStep(true)
	return enterEventMode, terminate, i.check("CompletedIntegratorStep", st)
}
