package modeldesc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned for descriptors that do not declare
	// fmiVersion 2.0.
	ErrUnsupportedVersion = errors.New("modeldesc: unsupported FMI version")
	// ErrNoImplementation is returned when the descriptor offers neither a
	// CoSimulation nor a ModelExchange element.
	ErrNoImplementation = errors.New("modeldesc: descriptor declares no CoSimulation or ModelExchange element")
)

// Validate checks the descriptor for the structural rules the runtime relies
// on. It returns the first violation found.
func (md *ModelDescription) Validate() error {
	if md.FMIVersion != "2.0" {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, md.FMIVersion)
	}
	if md.ModelName == "" {
		return errors.New("modeldesc: modelName must not be empty")
	}
	if md.GUID == "" {
		return errors.New("modeldesc: guid must not be empty")
	}
	if md.CoSimulation == nil && md.ModelExchange == nil {
		return ErrNoImplementation
	}
	if md.CoSimulation != nil && md.CoSimulation.ModelIdentifier == "" {
		return errors.New("modeldesc: CoSimulation modelIdentifier must not be empty")
	}
	if md.ModelExchange != nil && md.ModelExchange.ModelIdentifier == "" {
		return errors.New("modeldesc: ModelExchange modelIdentifier must not be empty")
	}

	names := make(map[string]struct{}, len(md.Variables))
	vrs := make(map[vrKey]struct{}, len(md.Variables))
	for i, v := range md.Variables {
		if v.Name == "" {
			return fmt.Errorf("modeldesc: variable at index %d has no name", i+1)
		}
		if _, dup := names[v.Name]; dup {
			return fmt.Errorf("modeldesc: duplicate variable name %q", v.Name)
		}
		names[v.Name] = struct{}{}

		key := vrKey{v.ValueReference, v.Type()}
		if _, dup := vrs[key]; dup {
			return fmt.Errorf("modeldesc: duplicate value reference %d for type %s", v.ValueReference, v.Type())
		}
		vrs[key] = struct{}{}

		if err := v.validate(); err != nil {
			return err
		}
	}

	if md.ModelStructure != nil {
		for _, u := range md.ModelStructure.Outputs {
			if _, err := md.variableAtIndex(u.Index); err != nil {
				return fmt.Errorf("modeldesc: ModelStructure outputs: %w", err)
			}
		}
		if _, err := md.ContinuousStates(); err != nil {
			return fmt.Errorf("modeldesc: ModelStructure derivatives: %w", err)
		}
	}
	return nil
}

func (v *ScalarVariable) validate() error {
	switch v.Causality {
	case "", CausalityParameter, CausalityCalculatedParameter, CausalityInput,
		CausalityOutput, CausalityLocal, CausalityIndependent:
	default:
		return fmt.Errorf("modeldesc: variable %q: unknown causality %q", v.Name, v.Causality)
	}
	switch v.Variability {
	case "", VariabilityConstant, VariabilityFixed, VariabilityTunable,
		VariabilityDiscrete, VariabilityContinuous:
	default:
		return fmt.Errorf("modeldesc: variable %q: unknown variability %q", v.Name, v.Variability)
	}

	variability := v.EffectiveVariability()
	if v.Causality == CausalityParameter {
		if variability != VariabilityFixed && variability != VariabilityTunable {
			return fmt.Errorf("modeldesc: parameter %q must be fixed or tunable, got %q", v.Name, variability)
		}
		if !v.HasStart() {
			return fmt.Errorf("modeldesc: parameter %q has no start value", v.Name)
		}
	}
	if v.Causality == CausalityInput && !v.HasStart() {
		return fmt.Errorf("modeldesc: input %q has no start value", v.Name)
	}
	if variability == VariabilityContinuous && v.Type() != TypeReal {
		return fmt.Errorf("modeldesc: variable %q: only Real variables may be continuous", v.Name)
	}

	switch v.Initial {
	case "", InitialExact, InitialApprox, InitialCalculated:
	default:
		return fmt.Errorf("modeldesc: variable %q: unknown initial %q", v.Name, v.Initial)
	}
	if (v.Initial == InitialExact || v.Initial == InitialApprox) && !v.HasStart() {
		return fmt.Errorf("modeldesc: variable %q declares initial=%q but no start value", v.Name, v.Initial)
	}
	if v.Initial == InitialCalculated && v.HasStart() {
		return fmt.Errorf("modeldesc: variable %q declares initial=calculated with a start value", v.Name)
	}
	return nil
}
