package fmi2

import (
	"fmt"

	"github.com/san-kum/fmulab/internal/modeldesc"
)

func (i *Instance) readable(op string) error {
	switch i.mode {
	case InitializationMode, StepMode, EventMode, ContinuousTimeMode, Terminated:
		return nil
	}
	return i.illegal(op)
}

func (i *Instance) writable(op string) error {
	switch i.mode {
	case Instantiated, InitializationMode, StepMode, EventMode, ContinuousTimeMode:
		return nil
	}
	return i.illegal(op)
}

// settable enforces the variability rules: constants never change, fixed
// parameters freeze once initialization ends.
func (i *Instance) settable(v *modeldesc.ScalarVariable) error {
	variability := v.EffectiveVariability()
	if variability == modeldesc.VariabilityConstant {
		return fmt.Errorf("%q is constant: %w", v.Name, ErrNotSettable)
	}
	initDone := i.mode != Instantiated && i.mode != InitializationMode
	if initDone {
		switch v.Causality {
		case modeldesc.CausalityParameter:
			if variability == modeldesc.VariabilityFixed {
				return fmt.Errorf("fixed parameter %q after initialization: %w", v.Name, ErrNotSettable)
			}
		case modeldesc.CausalityInput:
		default:
			return fmt.Errorf("%q has causality %q: %w", v.Name, v.Causality, ErrNotSettable)
		}
	}
	return nil
}

func (i *Instance) lookup(vrs []uint32, typ modeldesc.VarType) ([]*modeldesc.ScalarVariable, error) {
	vars := make([]*modeldesc.ScalarVariable, len(vrs))
	for n, vr := range vrs {
		v, ok := i.md.VariableByVR(vr, typ)
		if !ok {
			return nil, fmt.Errorf("vr %d (%s): %w", vr, typ, ErrUnknownVariable)
		}
		vars[n] = v
	}
	return vars, nil
}

// GetReal reads Real variables by value reference.
func (i *Instance) GetReal(vrs []uint32) ([]float64, error) {
	if err := i.readable("GetReal"); err != nil {
		return nil, err
	}
	if _, err := i.lookup(vrs, modeldesc.TypeReal); err != nil {
		return nil, err
	}
	values := make([]float64, len(vrs))
	if err := i.check("GetReal", i.b.GetReal(vrs, values)); err != nil {
		return nil, err
	}
	return values, nil
}

// SetReal writes Real variables by value reference.
func (i *Instance) SetReal(vrs []uint32, values []float64) error {
	if err := i.writable("SetReal"); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetReal: %d refs but %d values", len(vrs), len(values))
	}
	vars, err := i.lookup(vrs, modeldesc.TypeReal)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if err := i.settable(v); err != nil {
			return err
		}
	}
	return i.check("SetReal", i.b.SetReal(vrs, values))
}

// GetInteger reads Integer variables by value reference.
func (i *Instance) GetInteger(vrs []uint32) ([]int32, error) {
	if err := i.readable("GetInteger"); err != nil {
		return nil, err
	}
	if _, err := i.lookup(vrs, modeldesc.TypeInteger); err != nil {
		return nil, err
	}
	values := make([]int32, len(vrs))
	if err := i.check("GetInteger", i.b.GetInteger(vrs, values)); err != nil {
		return nil, err
	}
	return values, nil
}

// SetInteger writes Integer variables by value reference.
func (i *Instance) SetInteger(vrs []uint32, values []int32) error {
	if err := i.writable("SetInteger"); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetInteger: %d refs but %d values", len(vrs), len(values))
	}
	vars, err := i.lookup(vrs, modeldesc.TypeInteger)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if err := i.settable(v); err != nil {
			return err
		}
	}
	return i.check("SetInteger", i.b.SetInteger(vrs, values))
}

// GetBoolean reads Boolean variables by value reference.
func (i *Instance) GetBoolean(vrs []uint32) ([]bool, error) {
	if err := i.readable("GetBoolean"); err != nil {
		return nil, err
	}
	if _, err := i.lookup(vrs, modeldesc.TypeBoolean); err != nil {
		return nil, err
	}
	values := make([]bool, len(vrs))
	if err := i.check("GetBoolean", i.b.GetBoolean(vrs, values)); err != nil {
		return nil, err
	}
	return values, nil
}

// SetBoolean writes Boolean variables by value reference.
func (i *Instance) SetBoolean(vrs []uint32, values []bool) error {
	if err := i.writable("SetBoolean"); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetBoolean: %d refs but %d values", len(vrs), len(values))
	}
	vars, err := i.lookup(vrs, modeldesc.TypeBoolean)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if err := i.settable(v); err != nil {
			return err
		}
	}
	return i.check("SetBoolean", i.b.SetBoolean(vrs, values))
}

// GetString reads String variables by value reference.
func (i *Instance) GetString(vrs []uint32) ([]string, error) {
	if err := i.readable("GetString"); err != nil {
		return nil, err
	}
	if _, err := i.lookup(vrs, modeldesc.TypeString); err != nil {
		return nil, err
	}
	values := make([]string, len(vrs))
	if err := i.check("GetString", i.b.GetString(vrs, values)); err != nil {
		return nil, err
	}
	return values, nil
}

// SetString writes String variables by value reference.
func (i *Instance) SetString(vrs []uint32, values []string) error {
	if err := i.writable("SetString"); err != nil {
		return err
	}
	if len(vrs) != len(values) {
		return fmt.Errorf("SetString: %d refs but %d values", len(vrs), len(values))
	}
	vars, err := i.lookup(vrs, modeldesc.TypeString)
	if err != nil {
		return err
	}
	for _, v := range vars {
		if err := i.settable(v); err != nil {
			return err
		}
	}
	return i.check("SetString", i.b.SetString(vrs, values))
}

// Get reads a mixed-typed batch of variables by name. Values come back as
// float64, int32, bool or string according to each variable's declared type.
func (i *Instance) Get(names []string) ([]any, error) {
	if err := i.readable("Get"); err != nil {
		return nil, err
	}
	values := make([]any, len(names))
	for n, name := range names {
		v, ok := i.md.Variable(name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownVariable)
		}
		vr := []uint32{v.ValueReference}
		switch v.Type() {
		case modeldesc.TypeReal:
			buf := make([]float64, 1)
			if err := i.check("GetReal", i.b.GetReal(vr, buf)); err != nil {
				return nil, err
			}
			values[n] = buf[0]
		case modeldesc.TypeInteger:
			buf := make([]int32, 1)
			if err := i.check("GetInteger", i.b.GetInteger(vr, buf)); err != nil {
				return nil, err
			}
			values[n] = buf[0]
		case modeldesc.TypeBoolean:
			buf := make([]bool, 1)
			if err := i.check("GetBoolean", i.b.GetBoolean(vr, buf)); err != nil {
				return nil, err
			}
			values[n] = buf[0]
		case modeldesc.TypeString:
			buf := make([]string, 1)
			if err := i.check("GetString", i.b.GetString(vr, buf)); err != nil {
				return nil, err
			}
			values[n] = buf[0]
		}
	}
	return values, nil
}

// Set writes a mixed-typed batch of variables by name. Numeric values coerce
// to the variable's declared type; anything else is a type mismatch.
func (i *Instance) Set(names []string, values []any) error {
	if err := i.writable("Set"); err != nil {
		return err
	}
	if len(names) != len(values) {
		return fmt.Errorf("Set: %d names but %d values", len(names), len(values))
	}
	for n, name := range names {
		v, ok := i.md.Variable(name)
		if !ok {
			return fmt.Errorf("%q: %w", name, ErrUnknownVariable)
		}
		if err := i.settable(v); err != nil {
			return err
		}
		if err := i.setOne(v, values[n]); err != nil {
			return err
		}
	}
	return nil
}

func (i *Instance) setOne(v *modeldesc.ScalarVariable, value any) error {
	vr := []uint32{v.ValueReference}
	switch v.Type() {
	case modeldesc.TypeReal:
		f, err := toFloat(v.Name, value)
		if err != nil {
			return err
		}
		return i.check("SetReal", i.b.SetReal(vr, []float64{f}))
	case modeldesc.TypeInteger:
		iv, err := toInt32(v.Name, value)
		if err != nil {
			return err
		}
		return i.check("SetInteger", i.b.SetInteger(vr, []int32{iv}))
	case modeldesc.TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%q expects bool, got %T: %w", v.Name, value, ErrTypeMismatch)
		}
		return i.check("SetBoolean", i.b.SetBoolean(vr, []bool{b}))
	case modeldesc.TypeString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%q expects string, got %T: %w", v.Name, value, ErrTypeMismatch)
		}
		return i.check("SetString", i.b.SetString(vr, []string{s}))
	}
	return fmt.Errorf("%q: unsupported type: %w", v.Name, ErrTypeMismatch)
}

func toFloat(name string, value any) (float64, error) {
	switch x := value.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%q expects Real, got %T: %w", name, value, ErrTypeMismatch)
}

func toInt32(name string, value any) (int32, error) {
	switch x := value.(type) {
	case int:
		return int32(x), nil
	case int32:
		return x, nil
	case int64:
		return int32(x), nil
	case float64:
		if x == float64(int64(x)) {
			return int32(x), nil
		}
	}
	return 0, fmt.Errorf("%q expects Integer, got %T: %w", name, value, ErrTypeMismatch)
}
