// Package integrators provides the fixed and adaptive ODE steppers the
// model-exchange driver advances continuous states with.
package integrators

// System evaluates state derivatives. Evaluation crosses into the model
// instance and can fail, so implementations return an error.
type System interface {
	// Derivatives fills dx with dx/dt at (t, x).
	Derivatives(t float64, x, dx []float64) error
}

// Integrator advances a state vector by one step of size dt.
type Integrator interface {
	Step(sys System, t float64, x []float64, dt float64) ([]float64, error)
}

// Adaptive integrators additionally estimate local error and propose the next
// step size.
type Adaptive interface {
	Integrator
	StepAdaptive(sys System, t float64, x []float64, dt, tol float64) (next []float64, dtNext float64, err error)
}

// New returns the integrator registered under the given name: euler, rk4 or
// rk45.
func New(name string) (Integrator, bool) {
	switch name {
	case "euler":
		return NewEuler(), true
	case "rk4":
		return NewRK4(), true
	case "rk45":
		return NewRK45(), true
	}
	return nil, false
}
