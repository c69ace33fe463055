package fmi2

import (
	"errors"
	"testing"

	"github.com/san-kum/fmulab/internal/modeldesc"
)

// fakeBackend records calls and returns scripted statuses.
type fakeBackend struct {
	calls    []string
	statuses map[string]Status

	reals   map[uint32]float64
	ints    map[uint32]int32
	bools   map[uint32]bool
	strings map[uint32]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		statuses: make(map[string]Status),
		reals:    make(map[uint32]float64),
		ints:     make(map[uint32]int32),
		bools:    make(map[uint32]bool),
		strings:  make(map[uint32]string),
	}
}

func (f *fakeBackend) ret(op string) Status {
	f.calls = append(f.calls, op)
	return f.statuses[op]
}

func (f *fakeBackend) SetupExperiment(bool, float64, float64, bool, float64) Status {
	return f.ret("SetupExperiment")
}
func (f *fakeBackend) EnterInitializationMode() Status { return f.ret("EnterInitializationMode") }
func (f *fakeBackend) ExitInitializationMode() Status  { return f.ret("ExitInitializationMode") }
func (f *fakeBackend) Terminate() Status               { return f.ret("Terminate") }
func (f *fakeBackend) Reset() Status                   { return f.ret("Reset") }
func (f *fakeBackend) FreeInstance()                   { f.calls = append(f.calls, "FreeInstance") }

func (f *fakeBackend) GetReal(vrs []uint32, values []float64) Status {
	for i, vr := range vrs {
		values[i] = f.reals[vr]
	}
	return f.ret("GetReal")
}

func (f *fakeBackend) SetReal(vrs []uint32, values []float64) Status {
	for i, vr := range vrs {
		f.reals[vr] = values[i]
	}
	return f.ret("SetReal")
}

func (f *fakeBackend) GetInteger(vrs []uint32, values []int32) Status {
	for i, vr := range vrs {
		values[i] = f.ints[vr]
	}
	return f.ret("GetInteger")
}

func (f *fakeBackend) SetInteger(vrs []uint32, values []int32) Status {
	for i, vr := range vrs {
		f.ints[vr] = values[i]
	}
	return f.ret("SetInteger")
}

func (f *fakeBackend) GetBoolean(vrs []uint32, values []bool) Status {
	for i, vr := range vrs {
		values[i] = f.bools[vr]
	}
	return f.ret("GetBoolean")
}

func (f *fakeBackend) SetBoolean(vrs []uint32, values []bool) Status {
	for i, vr := range vrs {
		f.bools[vr] = values[i]
	}
	return f.ret("SetBoolean")
}

func (f *fakeBackend) GetString(vrs []uint32, values []string) Status {
	for i, vr := range vrs {
		values[i] = f.strings[vr]
	}
	return f.ret("GetString")
}

func (f *fakeBackend) SetString(vrs []uint32, values []string) Status {
	for i, vr := range vrs {
		f.strings[vr] = values[i]
	}
	return f.ret("SetString")
}

func (f *fakeBackend) DoStep(float64, float64, bool) Status { return f.ret("DoStep") }
func (f *fakeBackend) SetTime(float64) Status               { return f.ret("SetTime") }
func (f *fakeBackend) SetContinuousStates([]float64) Status { return f.ret("SetContinuousStates") }
func (f *fakeBackend) GetContinuousStates([]float64) Status { return f.ret("GetContinuousStates") }
func (f *fakeBackend) GetDerivatives([]float64) Status      { return f.ret("GetDerivatives") }
func (f *fakeBackend) GetEventIndicators([]float64) Status  { return f.ret("GetEventIndicators") }
func (f *fakeBackend) EnterEventMode() Status               { return f.ret("EnterEventMode") }
func (f *fakeBackend) NewDiscreteStates(info *EventInfo) Status {
	return f.ret("NewDiscreteStates")
}
func (f *fakeBackend) EnterContinuousTimeMode() Status { return f.ret("EnterContinuousTimeMode") }
func (f *fakeBackend) CompletedIntegratorStep(bool) (bool, bool, Status) {
	return false, false, f.ret("CompletedIntegratorStep")
}

func fptr(v float64) *float64 { return &v }

func testDescription() *modeldesc.ModelDescription {
	md := &modeldesc.ModelDescription{
		FMIVersion:    "2.0",
		ModelName:     "Test",
		GUID:          "{test}",
		CoSimulation:  &modeldesc.CoSimulation{ModelIdentifier: "Test"},
		ModelExchange: &modeldesc.ModelExchange{ModelIdentifier: "Test"},
		Variables: []*modeldesc.ScalarVariable{
			{
				Name: "x", ValueReference: 0,
				Causality: modeldesc.CausalityOutput, Variability: modeldesc.VariabilityContinuous,
				Initial: modeldesc.InitialExact, Real: &modeldesc.RealType{Start: fptr(1.0)},
			},
			{
				Name: "p", ValueReference: 1,
				Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityFixed,
				Initial: modeldesc.InitialExact, Real: &modeldesc.RealType{Start: fptr(2.0)},
			},
			{
				Name: "tp", ValueReference: 2,
				Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityTunable,
				Initial: modeldesc.InitialExact, Real: &modeldesc.RealType{Start: fptr(3.0)},
			},
			{
				Name: "pi", ValueReference: 3,
				Causality: modeldesc.CausalityLocal, Variability: modeldesc.VariabilityConstant,
				Initial: modeldesc.InitialExact, Real: &modeldesc.RealType{Start: fptr(3.14)},
			},
			{
				Name: "n", ValueReference: 0,
				Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityFixed,
				Initial: modeldesc.InitialExact, Integer: &modeldesc.IntegerType{Start: new(int32)},
			},
			{
				Name: "on", ValueReference: 0,
				Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityFixed,
				Initial: modeldesc.InitialExact, Boolean: &modeldesc.BooleanType{Start: new(bool)},
			},
			{
				Name: "tag", ValueReference: 0,
				Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityFixed,
				Initial: modeldesc.InitialExact, String: &modeldesc.StringType{Start: new(string)},
			},
		},
	}
	md.Reindex()
	return md
}

func setup(t *testing.T, kind Kind) (*Instance, *fakeBackend) {
	t.Helper()
	b := newFakeBackend()
	return NewInstance("inst", kind, testDescription(), b), b
}

func initialize(t *testing.T, inst *Instance) {
	t.Helper()
	if err := inst.SetupExperiment(0, nil, nil); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := inst.EnterInitializationMode(); err != nil {
		t.Fatalf("enter init: %v", err)
	}
	if err := inst.ExitInitializationMode(); err != nil {
		t.Fatalf("exit init: %v", err)
	}
}

func TestLifecycleCS(t *testing.T) {
	inst, b := setup(t, CoSimulation)

	if inst.Mode() != Instantiated {
		t.Fatalf("expected instantiated mode, got %s", inst.Mode())
	}
	initialize(t, inst)
	if inst.Mode() != StepMode {
		t.Errorf("CS instance should be in step mode, got %s", inst.Mode())
	}

	if err := inst.DoStep(0.1); err != nil {
		t.Fatalf("do step: %v", err)
	}
	if inst.Time() != 0.1 {
		t.Errorf("expected time 0.1, got %f", inst.Time())
	}

	if err := inst.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	inst.Close()

	want := []string{"SetupExperiment", "EnterInitializationMode", "ExitInitializationMode", "DoStep", "Terminate", "FreeInstance"}
	if len(b.calls) != len(want) {
		t.Fatalf("expected %d backend calls, got %d: %v", len(want), len(b.calls), b.calls)
	}
	for i, op := range want {
		if b.calls[i] != op {
			t.Errorf("call %d: expected %s, got %s", i, op, b.calls[i])
		}
	}
}

func TestLifecycleME(t *testing.T) {
	inst, _ := setup(t, ModelExchange)
	initialize(t, inst)

	if inst.Mode() != EventMode {
		t.Fatalf("ME instance should enter event mode after init, got %s", inst.Mode())
	}
	if _, err := inst.NewDiscreteStates(); err != nil {
		t.Fatalf("new discrete states: %v", err)
	}
	if err := inst.EnterContinuousTimeMode(); err != nil {
		t.Fatalf("enter continuous time: %v", err)
	}
	if inst.Mode() != ContinuousTimeMode {
		t.Errorf("expected continuous-time mode, got %s", inst.Mode())
	}
	if err := inst.SetTime(1.5); err != nil {
		t.Fatalf("set time: %v", err)
	}
	if _, _, err := inst.CompletedIntegratorStep(); err != nil {
		t.Fatalf("completed integrator step: %v", err)
	}
	if err := inst.EnterEventMode(); err != nil {
		t.Fatalf("enter event mode: %v", err)
	}
	if inst.Mode() != EventMode {
		t.Errorf("expected event mode, got %s", inst.Mode())
	}
}

func TestIllegalTransitions(t *testing.T) {
	t.Run("init before setup", func(t *testing.T) {
		inst, _ := setup(t, CoSimulation)
		if err := inst.EnterInitializationMode(); !errors.Is(err, ErrIllegalCall) {
			t.Errorf("expected ErrIllegalCall, got %v", err)
		}
	})

	t.Run("do step before init", func(t *testing.T) {
		inst, _ := setup(t, CoSimulation)
		if err := inst.DoStep(0.1); !errors.Is(err, ErrIllegalCall) {
			t.Errorf("expected ErrIllegalCall, got %v", err)
		}
	})

	t.Run("do step on ME instance", func(t *testing.T) {
		inst, _ := setup(t, ModelExchange)
		initialize(t, inst)
		if err := inst.DoStep(0.1); !errors.Is(err, ErrIllegalCall) {
			t.Errorf("expected ErrIllegalCall, got %v", err)
		}
	})

	t.Run("ME calls on CS instance", func(t *testing.T) {
		inst, _ := setup(t, CoSimulation)
		initialize(t, inst)
		if err := inst.SetTime(1.0); !errors.Is(err, ErrIllegalCall) {
			t.Errorf("expected ErrIllegalCall, got %v", err)
		}
	})

	t.Run("exit init twice", func(t *testing.T) {
		inst, _ := setup(t, CoSimulation)
		initialize(t, inst)
		if err := inst.ExitInitializationMode(); !errors.Is(err, ErrIllegalCall) {
			t.Errorf("expected ErrIllegalCall, got %v", err)
		}
	})

	t.Run("terminate when instantiated", func(t *testing.T) {
		inst, _ := setup(t, CoSimulation)
		if err := inst.Terminate(); !errors.Is(err, ErrIllegalCall) {
			t.Errorf("expected ErrIllegalCall, got %v", err)
		}
	})
}

func TestDoStepRejectsBadStep(t *testing.T) {
	inst, _ := setup(t, CoSimulation)
	initialize(t, inst)
	if err := inst.DoStep(0); err == nil {
		t.Error("expected error for zero step size")
	}
	if err := inst.DoStep(-0.1); err == nil {
		t.Error("expected error for negative step size")
	}
}

func TestStatusMapping(t *testing.T) {
	inst, b := setup(t, CoSimulation)
	initialize(t, inst)

	b.statuses["DoStep"] = StatusDiscard
	if err := inst.DoStep(0.1); !errors.Is(err, ErrDiscarded) {
		t.Errorf("expected ErrDiscarded, got %v", err)
	}

	b.statuses["DoStep"] = StatusError
	if err := inst.DoStep(0.1); err == nil || errors.Is(err, ErrDiscarded) {
		t.Errorf("expected plain error, got %v", err)
	}

	b.statuses["DoStep"] = StatusFatal
	if err := inst.DoStep(0.1); !errors.Is(err, ErrFatal) {
		t.Errorf("expected ErrFatal, got %v", err)
	}
	if inst.Mode() != Terminated {
		t.Errorf("fatal status should terminate the instance, mode %s", inst.Mode())
	}
}

func TestWarningSucceeds(t *testing.T) {
	inst, b := setup(t, CoSimulation)
	initialize(t, inst)

	b.statuses["DoStep"] = StatusWarning
	if err := inst.DoStep(0.1); err != nil {
		t.Errorf("warning should not fail the call: %v", err)
	}
}

func TestTypedGetSet(t *testing.T) {
	inst, b := setup(t, CoSimulation)
	initialize(t, inst)

	if err := inst.SetReal([]uint32{2}, []float64{42.0}); err != nil {
		t.Fatalf("set real: %v", err)
	}
	got, err := inst.GetReal([]uint32{2})
	if err != nil {
		t.Fatalf("get real: %v", err)
	}
	if got[0] != 42.0 {
		t.Errorf("round trip expected 42.0, got %f", got[0])
	}

	if _, err := inst.GetReal([]uint32{99}); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
	if err := inst.SetReal([]uint32{2}, []float64{1, 2}); err == nil {
		t.Error("expected length mismatch error")
	}

	b.ints[0] = 7
	ints, err := inst.GetInteger([]uint32{0})
	if err != nil {
		t.Fatalf("get integer: %v", err)
	}
	if ints[0] != 7 {
		t.Errorf("expected 7, got %d", ints[0])
	}
}

func TestSettabilityRules(t *testing.T) {
	inst, _ := setup(t, CoSimulation)

	// Constants are never settable.
	if err := inst.SetReal([]uint32{3}, []float64{3.0}); !errors.Is(err, ErrNotSettable) {
		t.Errorf("expected ErrNotSettable for constant, got %v", err)
	}

	// Fixed parameters are settable before initialization ends.
	if err := inst.SetReal([]uint32{1}, []float64{9.0}); err != nil {
		t.Errorf("fixed parameter before init should be settable: %v", err)
	}

	initialize(t, inst)

	if err := inst.SetReal([]uint32{1}, []float64{10.0}); !errors.Is(err, ErrNotSettable) {
		t.Errorf("expected ErrNotSettable for fixed parameter after init, got %v", err)
	}
	// Tunable parameters stay settable.
	if err := inst.SetReal([]uint32{2}, []float64{5.0}); err != nil {
		t.Errorf("tunable parameter should be settable after init: %v", err)
	}
}

func TestBatchGetSet(t *testing.T) {
	inst, _ := setup(t, CoSimulation)

	names := []string{"p", "n", "on", "tag"}
	values := []any{2.5, 3, true, "hello"}
	if err := inst.Set(names, values); err != nil {
		t.Fatalf("batch set: %v", err)
	}

	initialize(t, inst)

	got, err := inst.Get(names)
	if err != nil {
		t.Fatalf("batch get: %v", err)
	}
	if got[0].(float64) != 2.5 {
		t.Errorf("expected 2.5, got %v", got[0])
	}
	if got[1].(int32) != 3 {
		t.Errorf("expected 3, got %v", got[1])
	}
	if got[2].(bool) != true {
		t.Errorf("expected true, got %v", got[2])
	}
	if got[3].(string) != "hello" {
		t.Errorf("expected hello, got %v", got[3])
	}
}

func TestBatchSetTypeMismatch(t *testing.T) {
	inst, _ := setup(t, CoSimulation)

	if err := inst.Set([]string{"p"}, []any{"not a number"}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}
	if err := inst.Set([]string{"on"}, []any{1}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for bool, got %v", err)
	}
	if err := inst.Set([]string{"missing"}, []any{1.0}); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
	if err := inst.Set([]string{"p", "n"}, []any{1.0}); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestReset(t *testing.T) {
	inst, _ := setup(t, CoSimulation)
	initialize(t, inst)

	if err := inst.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if inst.Mode() != Instantiated {
		t.Errorf("reset should return to instantiated mode, got %s", inst.Mode())
	}

	// A reset instance runs a full lifecycle again.
	initialize(t, inst)
	if err := inst.DoStep(0.1); err != nil {
		t.Fatalf("do step after reset: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	inst, b := setup(t, CoSimulation)
	inst.Close()
	inst.Close()

	count := 0
	for _, c := range b.calls {
		if c == "FreeInstance" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("FreeInstance should be called once, got %d", count)
	}
	if err := inst.Reset(); !errors.Is(err, ErrIllegalCall) {
		t.Errorf("reset after close should fail, got %v", err)
	}
}
