package refmodel

import (
	"math"

	"github.com/san-kum/fmulab/internal/modeldesc"
)

func fp(v float64) *float64 { return &v }
func ip(v int32) *int32     { return &v }
func bp(v bool) *bool       { return &v }
func sp(v string) *string   { return &v }

func realVar(name string, vr uint32, causality, variability, initial string, start *float64, derivative int) *modeldesc.ScalarVariable {
	return &modeldesc.ScalarVariable{
		Name:           name,
		ValueReference: vr,
		Causality:      causality,
		Variability:    variability,
		Initial:        initial,
		Real:           &modeldesc.RealType{Start: start, Derivative: derivative},
	}
}

func describe(name, guid string, eventIndicators int, vars []*modeldesc.ScalarVariable, structure *modeldesc.ModelStructure) *modeldesc.ModelDescription {
	md := &modeldesc.ModelDescription{
		FMIVersion:              "2.0",
		ModelName:               name,
		GUID:                    guid,
		GenerationTool:          "fmulab-refmodel",
		NumberOfEventIndicators: eventIndicators,
		CoSimulation: &modeldesc.CoSimulation{
			ModelIdentifier:                        name,
			CanHandleVariableCommunicationStepSize: true,
		},
		ModelExchange: &modeldesc.ModelExchange{ModelIdentifier: name},
		DefaultExperiment: &modeldesc.DefaultExperiment{
			StartTime: fp(0), StopTime: fp(10), Tolerance: fp(1e-6), StepSize: fp(0.01),
		},
		Variables:      vars,
		ModelStructure: structure,
	}
	md.Reindex()
	return md
}

// NewSpringMass builds a damped spring-mass oscillator.
// States: position x, velocity v. Parameters: mass m, stiffness k, damping c.
func NewSpringMass() *Backend {
	type state struct{ x, v, derx, derv, m, k, c float64 }
	def := state{x: 1.0, v: 0.0, m: 1.0, k: 10.0, c: 0.5}
	cur := def

	md := describe("SpringMass", "{fmulab-spring-mass}", 0,
		[]*modeldesc.ScalarVariable{
			realVar("x", 0, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, modeldesc.InitialExact, fp(def.x), 0),
			realVar("v", 1, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, modeldesc.InitialExact, fp(def.v), 0),
			realVar("der(x)", 2, modeldesc.CausalityLocal, modeldesc.VariabilityContinuous, modeldesc.InitialCalculated, nil, 1),
			realVar("der(v)", 3, modeldesc.CausalityLocal, modeldesc.VariabilityContinuous, modeldesc.InitialCalculated, nil, 2),
			realVar("m", 4, modeldesc.CausalityParameter, modeldesc.VariabilityFixed, modeldesc.InitialExact, fp(def.m), 0),
			realVar("k", 5, modeldesc.CausalityParameter, modeldesc.VariabilityTunable, modeldesc.InitialExact, fp(def.k), 0),
			realVar("c", 6, modeldesc.CausalityParameter, modeldesc.VariabilityTunable, modeldesc.InitialExact, fp(def.c), 0),
		},
		&modeldesc.ModelStructure{
			Outputs:     []modeldesc.Unknown{{Index: 1}, {Index: 2}},
			Derivatives: []modeldesc.Unknown{{Index: 3}, {Index: 4}},
		})

	b := &Backend{name: "SpringMass", md: md, vars: newVarTable(), nx: 2}
	b.vars.reals = map[uint32]*float64{
		0: &cur.x, 1: &cur.v, 2: &cur.derx, 3: &cur.derv, 4: &cur.m, 5: &cur.k, 6: &cur.c,
	}
	b.deriv = func(t float64, x, dx []float64) {
		dx[0] = x[1]
		dx[1] = (-cur.k*x[0] - cur.c*x[1]) / cur.m
	}
	b.initStates = func(b *Backend) []float64 { return []float64{cur.x, cur.v} }
	b.syncOutputs = func(b *Backend, x []float64) {
		cur.x, cur.v = x[0], x[1]
		dx := make([]float64, 2)
		b.deriv(b.t, x, dx)
		cur.derx, cur.derv = dx[0], dx[1]
	}
	b.reset = func(b *Backend) { cur = def }
	return b
}

// NewVanDerPol builds the Van der Pol oscillator with nonlinearity
// parameter mu.
func NewVanDerPol() *Backend {
	type state struct{ x0, x1, der0, der1, mu float64 }
	def := state{x0: 2.0, x1: 0.0, mu: 1.0}
	cur := def

	md := describe("VanDerPol", "{fmulab-vanderpol}", 0,
		[]*modeldesc.ScalarVariable{
			realVar("x0", 0, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, modeldesc.InitialExact, fp(def.x0), 0),
			realVar("x1", 1, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, modeldesc.InitialExact, fp(def.x1), 0),
			realVar("der(x0)", 2, modeldesc.CausalityLocal, modeldesc.VariabilityContinuous, modeldesc.InitialCalculated, nil, 1),
			realVar("der(x1)", 3, modeldesc.CausalityLocal, modeldesc.VariabilityContinuous, modeldesc.InitialCalculated, nil, 2),
			realVar("mu", 4, modeldesc.CausalityParameter, modeldesc.VariabilityTunable, modeldesc.InitialExact, fp(def.mu), 0),
		},
		&modeldesc.ModelStructure{
			Outputs:     []modeldesc.Unknown{{Index: 1}, {Index: 2}},
			Derivatives: []modeldesc.Unknown{{Index: 3}, {Index: 4}},
		})

	b := &Backend{name: "VanDerPol", md: md, vars: newVarTable(), nx: 2}
	b.vars.reals = map[uint32]*float64{
		0: &cur.x0, 1: &cur.x1, 2: &cur.der0, 3: &cur.der1, 4: &cur.mu,
	}
	b.deriv = func(t float64, x, dx []float64) {
		dx[0] = x[1]
		dx[1] = cur.mu*(1-x[0]*x[0])*x[1] - x[0]
	}
	b.initStates = func(b *Backend) []float64 { return []float64{cur.x0, cur.x1} }
	b.syncOutputs = func(b *Backend, x []float64) {
		cur.x0, cur.x1 = x[0], x[1]
		dx := make([]float64, 2)
		b.deriv(b.t, x, dx)
		cur.der0, cur.der1 = dx[0], dx[1]
	}
	b.reset = func(b *Backend) { cur = def }
	return b
}

// NewBouncingBall builds the classic bouncing ball with a ground-contact
// state event. It carries Integer, Boolean and String variables alongside the
// Reals so typed access paths get exercised.
func NewBouncingBall() *Backend {
	type state struct {
		h, v, derh, derv, g, e float64
		bounces                int32
		sticky                 bool
		label                  string
	}
	def := state{h: 1.0, v: 0.0, g: -9.81, e: 0.7, label: "ball"}
	cur := def

	vars := []*modeldesc.ScalarVariable{
		realVar("h", 0, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, modeldesc.InitialExact, fp(def.h), 0),
		realVar("v", 1, modeldesc.CausalityOutput, modeldesc.VariabilityContinuous, modeldesc.InitialExact, fp(def.v), 0),
		realVar("der(h)", 2, modeldesc.CausalityLocal, modeldesc.VariabilityContinuous, modeldesc.InitialCalculated, nil, 1),
		realVar("der(v)", 3, modeldesc.CausalityLocal, modeldesc.VariabilityContinuous, modeldesc.InitialCalculated, nil, 2),
		realVar("g", 4, modeldesc.CausalityParameter, modeldesc.VariabilityFixed, modeldesc.InitialExact, fp(def.g), 0),
		realVar("e", 5, modeldesc.CausalityParameter, modeldesc.VariabilityTunable, modeldesc.InitialExact, fp(def.e), 0),
		{
			Name: "bounces", ValueReference: 0,
			Causality: modeldesc.CausalityOutput, Variability: modeldesc.VariabilityDiscrete,
			Initial: modeldesc.InitialExact,
			Integer: &modeldesc.IntegerType{Start: ip(def.bounces)},
		},
		{
			Name: "sticky", ValueReference: 0,
			Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityFixed,
			Initial: modeldesc.InitialExact,
			Boolean: &modeldesc.BooleanType{Start: bp(def.sticky)},
		},
		{
			Name: "label", ValueReference: 0,
			Causality: modeldesc.CausalityParameter, Variability: modeldesc.VariabilityFixed,
			Initial: modeldesc.InitialExact,
			String:  &modeldesc.StringType{Start: sp(def.label)},
		},
	}

	md := describe("BouncingBall", "{fmulab-bouncing-ball}", 1, vars,
		&modeldesc.ModelStructure{
			Outputs:     []modeldesc.Unknown{{Index: 1}, {Index: 2}, {Index: 7}},
			Derivatives: []modeldesc.Unknown{{Index: 3}, {Index: 4}},
		})
	md.DefaultExperiment.StopTime = fp(3)

	b := &Backend{name: "BouncingBall", md: md, vars: newVarTable(), nx: 2, nz: 1}
	b.vars.reals = map[uint32]*float64{
		0: &cur.h, 1: &cur.v, 2: &cur.derh, 3: &cur.derv, 4: &cur.g, 5: &cur.e,
	}
	b.vars.ints = map[uint32]*int32{0: &cur.bounces}
	b.vars.bools = map[uint32]*bool{0: &cur.sticky}
	b.vars.strings = map[uint32]*string{0: &cur.label}

	b.deriv = func(t float64, x, dx []float64) {
		dx[0] = x[1]
		dx[1] = cur.g
	}
	b.indic = func(t float64, x, z []float64) {
		z[0] = x[0]
	}
	b.onEvent = func(t float64, x []float64) bool {
		if x[0] > 0 || x[1] >= 0 {
			return false
		}
		x[0] = 0
		x[1] = -cur.e * x[1]
		cur.bounces++
		if cur.sticky && math.Abs(x[1]) < 1e-3 {
			x[1] = 0
		}
		return true
	}
	b.initStates = func(b *Backend) []float64 { return []float64{cur.h, cur.v} }
	b.syncOutputs = func(b *Backend, x []float64) {
		cur.h, cur.v = x[0], x[1]
		dx := make([]float64, 2)
		b.deriv(b.t, x, dx)
		cur.derh, cur.derv = dx[0], dx[1]
	}
	b.reset = func(b *Backend) { cur = def }
	return b
}
