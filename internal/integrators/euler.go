package integrators

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys System, t float64, x []float64, dt float64) ([]float64, error) {
	dx := make([]float64, len(x))
	if err := sys.Derivatives(t, x, dx); err != nil {
		return nil, err
	}
	result := make([]float64, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result, nil
}
