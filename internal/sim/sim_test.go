package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/integrators"
	"github.com/san-kum/fmulab/internal/refmodel"
)

func newInstance(t *testing.T, model string, kind fmi2.Kind) *fmi2.Instance {
	t.Helper()
	inst, err := refmodel.Instantiate("test", model, kind)
	if err != nil {
		t.Fatalf("instantiate %s: %v", model, err)
	}
	t.Cleanup(inst.Close)
	return inst
}

func TestSimulateCS(t *testing.T) {
	inst := newInstance(t, "spring_mass", fmi2.CoSimulation)

	res, err := Simulate(context.Background(), inst, Config{
		StopTime: 5.0,
		StepSize: 0.01,
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	if len(res.Times) != len(res.Values) {
		t.Fatalf("times/values length mismatch: %d vs %d", len(res.Times), len(res.Values))
	}
	if res.Times[0] != 0 || math.Abs(res.Times[len(res.Times)-1]-5.0) > 1e-9 {
		t.Errorf("grid should span [0, 5], got [%f, %f]", res.Times[0], res.Times[len(res.Times)-1])
	}

	x, ok := res.Column("x")
	if !ok {
		t.Fatal("output x not recorded")
	}
	if x[0] != 1.0 {
		t.Errorf("expected initial position 1.0, got %f", x[0])
	}
	// Damped oscillator decays.
	if math.Abs(x[len(x)-1]) >= 1.0 {
		t.Errorf("expected decay, final |x| = %f", math.Abs(x[len(x)-1]))
	}
	if inst.Mode() != fmi2.Terminated {
		t.Errorf("instance should be terminated, mode %s", inst.Mode())
	}
}

func TestSimulateME(t *testing.T) {
	inst := newInstance(t, "vanderpol", fmi2.ModelExchange)

	res, err := Simulate(context.Background(), inst, Config{
		StopTime:   10.0,
		StepSize:   0.01,
		Integrator: integrators.NewRK4(),
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	x0, ok := res.Column("x0")
	if !ok {
		t.Fatal("output x0 not recorded")
	}
	// Van der Pol settles onto a limit cycle with |x| peaking near 2.
	maxAbs := 0.0
	for _, v := range x0[len(x0)/2:] {
		if math.Abs(v) > maxAbs {
			maxAbs = math.Abs(v)
		}
	}
	if maxAbs < 1.5 || maxAbs > 2.5 {
		t.Errorf("limit cycle amplitude out of range: %f", maxAbs)
	}
	if res.Steps == 0 {
		t.Error("expected nonzero step count")
	}
}

func TestSimulateMEAdaptive(t *testing.T) {
	inst := newInstance(t, "spring_mass", fmi2.ModelExchange)

	res, err := Simulate(context.Background(), inst, Config{
		StopTime:   2.0,
		StepSize:   0.01,
		Tolerance:  1e-6,
		MaxStep:    0.05,
		Integrator: integrators.NewRK45(),
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if len(res.Values) == 0 {
		t.Fatal("no samples recorded")
	}
}

func TestSimulateBouncingBallEvents(t *testing.T) {
	inst := newInstance(t, "bouncing_ball", fmi2.ModelExchange)

	res, err := Simulate(context.Background(), inst, Config{
		StopTime: 3.0,
		StepSize: 0.005,
		Record:   []string{"h", "v", "bounces"},
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	h, _ := res.Column("h")
	for i, v := range h {
		if v < -0.05 {
			t.Fatalf("ball fell through the floor at sample %d: h = %f", i, v)
		}
	}
	bounces, _ := res.Column("bounces")
	if bounces[len(bounces)-1] < 2 {
		t.Errorf("expected at least 2 bounces in 3s, got %f", bounces[len(bounces)-1])
	}
}

// discardStep wraps a backend and discards communication steps above a
// threshold size.
type discardStep struct {
	fmi2.Backend
	threshold float64
	discards  int
}

func (b *discardStep) DoStep(currentTime, stepSize float64, noSet bool) fmi2.Status {
	if stepSize > b.threshold {
		b.discards++
		return fmi2.StatusDiscard
	}
	return b.Backend.DoStep(currentTime, stepSize, noSet)
}

func TestSimulateCSDiscardRetries(t *testing.T) {
	base := refmodel.NewSpringMass()
	b := &discardStep{Backend: base, threshold: 0.003}
	inst := fmi2.NewInstance("test", fmi2.CoSimulation, base.Description(), b)
	defer inst.Close()

	res, err := Simulate(context.Background(), inst, Config{
		StopTime: 0.1,
		StepSize: 0.01,
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if b.discards == 0 {
		t.Error("expected discarded steps above the threshold")
	}
	last := res.Times[len(res.Times)-1]
	if math.Abs(last-0.1) > 1e-9 {
		t.Errorf("expected run to reach 0.1 with halved steps, got %f", last)
	}
}

func TestSimulateCSFixedStepNoRetry(t *testing.T) {
	base := refmodel.NewSpringMass()
	base.Description().CoSimulation.CanHandleVariableCommunicationStepSize = false
	b := &discardStep{Backend: base, threshold: 0.003}
	inst := fmi2.NewInstance("test", fmi2.CoSimulation, base.Description(), b)
	defer inst.Close()

	_, err := Simulate(context.Background(), inst, Config{
		StopTime: 0.1,
		StepSize: 0.01,
	})
	if !errors.Is(err, fmi2.ErrDiscarded) {
		t.Fatalf("expected discard to surface, got %v", err)
	}
	if b.discards != 1 {
		t.Errorf("expected a single step attempt, got %d", b.discards)
	}
}

// pastTimeEvent wraps a backend and reports every discrete-state update with
// a next event time already in the past.
type pastTimeEvent struct {
	fmi2.Backend
	calls int
}

func (b *pastTimeEvent) NewDiscreteStates(info *fmi2.EventInfo) fmi2.Status {
	st := b.Backend.NewDiscreteStates(info)
	b.calls++
	info.NextEventTimeDefined = true
	info.NextEventTime = 0
	return st
}

func TestSimulateMEPastTimeEvent(t *testing.T) {
	base := refmodel.NewSpringMass()
	b := &pastTimeEvent{Backend: base}
	inst := fmi2.NewInstance("test", fmi2.ModelExchange, base.Description(), b)
	defer inst.Close()

	res, err := Simulate(context.Background(), inst, Config{
		StopTime:   0.05,
		StepSize:   0.01,
		Integrator: integrators.NewRK4(),
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if b.calls == 0 {
		t.Error("expected discrete-state updates")
	}
	last := res.Times[len(res.Times)-1]
	if math.Abs(last-0.05) > 1e-9 {
		t.Errorf("expected run to advance past the stale event time, got %f", last)
	}
}

func TestSimulateStartValues(t *testing.T) {
	inst := newInstance(t, "bouncing_ball", fmi2.ModelExchange)

	res, err := Simulate(context.Background(), inst, Config{
		StopTime: 1.0,
		StepSize: 0.005,
		Record:   []string{"h", "e"},
		StartValues: map[string]any{
			"h": 2.0,
			"e": 0.9,
		},
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	hCol, _ := res.Column("h")
	if hCol[0] != 2.0 {
		t.Errorf("expected initial height 2.0, got %f", hCol[0])
	}
	eCol, _ := res.Column("e")
	if eCol[0] != 0.9 {
		t.Errorf("expected restitution 0.9, got %f", eCol[0])
	}
}

func TestSimulateSampleTimes(t *testing.T) {
	inst := newInstance(t, "spring_mass", fmi2.CoSimulation)

	samples := []float64{0.5, 1.0, 2.5}
	res, err := Simulate(context.Background(), inst, Config{
		StopTime:    3.0,
		StepSize:    0.01,
		SampleTimes: samples,
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}

	// Initial sample plus one per requested timestamp.
	if len(res.Times) != len(samples)+1 {
		t.Fatalf("expected %d samples, got %d", len(samples)+1, len(res.Times))
	}
	for i, want := range samples {
		if math.Abs(res.Times[i+1]-want) > 1e-9 {
			t.Errorf("sample %d: expected t=%f, got %f", i, want, res.Times[i+1])
		}
	}
}

func TestSimulateRecordSelection(t *testing.T) {
	inst := newInstance(t, "spring_mass", fmi2.CoSimulation)

	res, err := Simulate(context.Background(), inst, Config{
		StopTime: 1.0,
		StepSize: 0.01,
		Record:   []string{"v", "k"},
	})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "v" || res.Columns[1] != "k" {
		t.Errorf("unexpected columns: %v", res.Columns)
	}
	kCol, _ := res.Column("k")
	if kCol[0] != 10.0 {
		t.Errorf("expected stiffness 10.0, got %f", kCol[0])
	}
}

func TestSimulateRecordUnknown(t *testing.T) {
	inst := newInstance(t, "spring_mass", fmi2.CoSimulation)

	_, err := Simulate(context.Background(), inst, Config{
		StopTime: 1.0,
		StepSize: 0.01,
		Record:   []string{"nope"},
	})
	if err == nil {
		t.Error("expected error for unknown record variable")
	}
}

func TestSimulateCancellation(t *testing.T) {
	inst := newInstance(t, "spring_mass", fmi2.CoSimulation)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulate(ctx, inst, Config{
		StopTime: 100.0,
		StepSize: 0.001,
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative step", Config{StepSize: -0.1, StopTime: 1}},
		{"stop before start", Config{StartTime: 5, StopTime: 1, StepSize: 0.1}},
		{"bad bounds", Config{StopTime: 1, StepSize: 0.1, MinStep: 0.5, MaxStep: 0.1}},
		{"unsorted samples", Config{StopTime: 1, StepSize: 0.1, SampleTimes: []float64{0.5, 0.2}}},
		{"sample outside range", Config{StopTime: 1, StepSize: 0.1, SampleTimes: []float64{2.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newInstance(t, "spring_mass", fmi2.CoSimulation)
			if _, err := Simulate(context.Background(), inst, tt.cfg); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestDefaultsFromDescriptor(t *testing.T) {
	inst := newInstance(t, "bouncing_ball", fmi2.CoSimulation)

	// BouncingBall's default experiment stops at 3.0.
	res, err := Simulate(context.Background(), inst, Config{})
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	last := res.Times[len(res.Times)-1]
	if math.Abs(last-3.0) > 1e-9 {
		t.Errorf("expected default stop time 3.0, got %f", last)
	}
}
