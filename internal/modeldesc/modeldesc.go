package modeldesc

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Variable causality values from the FMI 2.0 descriptor schema.
const (
	CausalityParameter           = "parameter"
	CausalityCalculatedParameter = "calculatedParameter"
	CausalityInput               = "input"
	CausalityOutput              = "output"
	CausalityLocal               = "local"
	CausalityIndependent         = "independent"
)

// Variable variability values.
const (
	VariabilityConstant   = "constant"
	VariabilityFixed      = "fixed"
	VariabilityTunable    = "tunable"
	VariabilityDiscrete   = "discrete"
	VariabilityContinuous = "continuous"
)

// Initial attribute values.
const (
	InitialExact      = "exact"
	InitialApprox     = "approx"
	InitialCalculated = "calculated"
)

type VarType int

const (
	TypeReal VarType = iota
	TypeInteger
	TypeBoolean
	TypeString
)

func (t VarType) String() string {
	switch t {
	case TypeReal:
		return "Real"
	case TypeInteger:
		return "Integer"
	case TypeBoolean:
		return "Boolean"
	case TypeString:
		return "String"
	}
	return "unknown"
}

type ModelDescription struct {
	XMLName                 xml.Name           `xml:"fmiModelDescription"`
	FMIVersion              string             `xml:"fmiVersion,attr"`
	ModelName               string             `xml:"modelName,attr"`
	GUID                    string             `xml:"guid,attr"`
	Description             string             `xml:"description,attr"`
	GenerationTool          string             `xml:"generationTool,attr"`
	GenerationDateAndTime   string             `xml:"generationDateAndTime,attr"`
	NumberOfEventIndicators int                `xml:"numberOfEventIndicators,attr"`
	CoSimulation            *CoSimulation      `xml:"CoSimulation"`
	ModelExchange           *ModelExchange     `xml:"ModelExchange"`
	DefaultExperiment       *DefaultExperiment `xml:"DefaultExperiment"`
	Variables               []*ScalarVariable  `xml:"ModelVariables>ScalarVariable"`
	ModelStructure          *ModelStructure    `xml:"ModelStructure"`

	byName map[string]*ScalarVariable
	byVR   map[vrKey]*ScalarVariable
}

type CoSimulation struct {
	ModelIdentifier                        string `xml:"modelIdentifier,attr"`
	CanHandleVariableCommunicationStepSize bool   `xml:"canHandleVariableCommunicationStepSize,attr"`
	CanInterpolateInputs                   bool   `xml:"canInterpolateInputs,attr"`
	NeedsExecutionTool                     bool   `xml:"needsExecutionTool,attr"`
}

type ModelExchange struct {
	ModelIdentifier    string `xml:"modelIdentifier,attr"`
	NeedsExecutionTool bool   `xml:"needsExecutionTool,attr"`
}

type DefaultExperiment struct {
	StartTime *float64 `xml:"startTime,attr"`
	StopTime  *float64 `xml:"stopTime,attr"`
	Tolerance *float64 `xml:"tolerance,attr"`
	StepSize  *float64 `xml:"stepSize,attr"`
}

type ScalarVariable struct {
	Name           string       `xml:"name,attr"`
	ValueReference uint32       `xml:"valueReference,attr"`
	Causality      string       `xml:"causality,attr"`
	Variability    string       `xml:"variability,attr"`
	Initial        string       `xml:"initial,attr"`
	Description    string       `xml:"description,attr"`
	Real           *RealType    `xml:"Real"`
	Integer        *IntegerType `xml:"Integer"`
	Boolean        *BooleanType `xml:"Boolean"`
	String         *StringType  `xml:"String"`
}

type RealType struct {
	Start      *float64 `xml:"start,attr"`
	Min        *float64 `xml:"min,attr"`
	Max        *float64 `xml:"max,attr"`
	Nominal    *float64 `xml:"nominal,attr"`
	Unit       string   `xml:"unit,attr"`
	Derivative int      `xml:"derivative,attr"`
}

type IntegerType struct {
	Start *int32 `xml:"start,attr"`
	Min   *int32 `xml:"min,attr"`
	Max   *int32 `xml:"max,attr"`
}

type BooleanType struct {
	Start *bool `xml:"start,attr"`
}

type StringType struct {
	Start *string `xml:"start,attr"`
}

type ModelStructure struct {
	Outputs        []Unknown `xml:"Outputs>Unknown"`
	Derivatives    []Unknown `xml:"Derivatives>Unknown"`
	InitialUnknown []Unknown `xml:"InitialUnknowns>Unknown"`
}

// Unknown references a variable by its 1-based index into ModelVariables.
type Unknown struct {
	Index        int    `xml:"index,attr"`
	Dependencies string `xml:"dependencies,attr"`
}

type vrKey struct {
	vr  uint32
	typ VarType
}

// Parse decodes an fmiModelDescription document and builds the lookup indexes.
func Parse(r io.Reader) (*ModelDescription, error) {
	var md ModelDescription
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&md); err != nil {
		return nil, fmt.Errorf("parse model description: %w", err)
	}
	md.buildIndex()
	return &md, nil
}

// Reindex rebuilds the lookup indexes. Call it after constructing or
// mutating a descriptor programmatically.
func (md *ModelDescription) Reindex() { md.buildIndex() }

func (md *ModelDescription) buildIndex() {
	md.byName = make(map[string]*ScalarVariable, len(md.Variables))
	md.byVR = make(map[vrKey]*ScalarVariable, len(md.Variables))
	for _, v := range md.Variables {
		if _, ok := md.byName[v.Name]; !ok {
			md.byName[v.Name] = v
		}
		key := vrKey{v.ValueReference, v.Type()}
		if _, ok := md.byVR[key]; !ok {
			md.byVR[key] = v
		}
	}
}

// Variable looks up a scalar variable by name.
func (md *ModelDescription) Variable(name string) (*ScalarVariable, bool) {
	v, ok := md.byName[name]
	return v, ok
}

// VariableByVR looks up a scalar variable by value reference and type.
func (md *ModelDescription) VariableByVR(vr uint32, typ VarType) (*ScalarVariable, bool) {
	v, ok := md.byVR[vrKey{vr, typ}]
	return v, ok
}

// Outputs returns the variables declared with output causality, in
// declaration order.
func (md *ModelDescription) Outputs() []*ScalarVariable {
	out := make([]*ScalarVariable, 0)
	for _, v := range md.Variables {
		if v.Causality == CausalityOutput {
			out = append(out, v)
		}
	}
	return out
}

// Parameters returns the variables declared with parameter causality.
func (md *ModelDescription) Parameters() []*ScalarVariable {
	out := make([]*ScalarVariable, 0)
	for _, v := range md.Variables {
		if v.Causality == CausalityParameter {
			out = append(out, v)
		}
	}
	return out
}

// ContinuousStates resolves the ModelStructure derivative entries to the state
// variables they differentiate. The returned slice holds the state variables,
// not the derivative variables.
func (md *ModelDescription) ContinuousStates() ([]*ScalarVariable, error) {
	if md.ModelStructure == nil {
		return nil, nil
	}
	states := make([]*ScalarVariable, 0, len(md.ModelStructure.Derivatives))
	for _, u := range md.ModelStructure.Derivatives {
		dv, err := md.variableAtIndex(u.Index)
		if err != nil {
			return nil, err
		}
		if dv.Real == nil || dv.Real.Derivative == 0 {
			return nil, fmt.Errorf("variable %q listed under Derivatives has no derivative attribute", dv.Name)
		}
		sv, err := md.variableAtIndex(dv.Real.Derivative)
		if err != nil {
			return nil, err
		}
		states = append(states, sv)
	}
	return states, nil
}

func (md *ModelDescription) variableAtIndex(idx int) (*ScalarVariable, error) {
	if idx < 1 || idx > len(md.Variables) {
		return nil, fmt.Errorf("model structure index %d out of range (1..%d)", idx, len(md.Variables))
	}
	return md.Variables[idx-1], nil
}

// Type reports which of the typed child elements the variable carries.
// Defaults to Real when the descriptor omits the element entirely.
func (v *ScalarVariable) Type() VarType {
	switch {
	case v.Integer != nil:
		return TypeInteger
	case v.Boolean != nil:
		return TypeBoolean
	case v.String != nil:
		return TypeString
	default:
		return TypeReal
	}
}

// HasStart reports whether a start value is declared.
func (v *ScalarVariable) HasStart() bool {
	switch v.Type() {
	case TypeReal:
		return v.Real != nil && v.Real.Start != nil
	case TypeInteger:
		return v.Integer.Start != nil
	case TypeBoolean:
		return v.Boolean.Start != nil
	case TypeString:
		return v.String.Start != nil
	}
	return false
}

// StartValue returns the declared start value as a dynamically typed value
// (float64, int32, bool or string).
func (v *ScalarVariable) StartValue() (any, bool) {
	switch v.Type() {
	case TypeReal:
		if v.Real != nil && v.Real.Start != nil {
			return *v.Real.Start, true
		}
	case TypeInteger:
		if v.Integer.Start != nil {
			return *v.Integer.Start, true
		}
	case TypeBoolean:
		if v.Boolean.Start != nil {
			return *v.Boolean.Start, true
		}
	case TypeString:
		if v.String.Start != nil {
			return *v.String.Start, true
		}
	}
	return nil, false
}

// EffectiveVariability resolves the schema default: continuous for Real
// variables, discrete otherwise.
func (v *ScalarVariable) EffectiveVariability() string {
	if v.Variability != "" {
		return v.Variability
	}
	if v.Type() == TypeReal {
		return VariabilityContinuous
	}
	return VariabilityDiscrete
}
