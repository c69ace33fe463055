package sim

import (
	"fmt"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/modeldesc"
)

// recorder samples the selected variables into a Result. String variables are
// not recordable; everything else widens to float64.
type recorder struct {
	inst *fmi2.Instance
	vars []*modeldesc.ScalarVariable

	result *Result
}

func newRecorder(inst *fmi2.Instance, names []string) (*recorder, error) {
	md := inst.Description()
	if len(names) == 0 {
		for _, v := range md.Outputs() {
			if v.Type() == modeldesc.TypeString {
				continue
			}
			names = append(names, v.Name)
		}
	}
	vars := make([]*modeldesc.ScalarVariable, len(names))
	for i, name := range names {
		v, ok := md.Variable(name)
		if !ok {
			return nil, fmt.Errorf("sim: record: %q: %w", name, fmi2.ErrUnknownVariable)
		}
		if v.Type() == modeldesc.TypeString {
			return nil, fmt.Errorf("sim: record: %q is a String variable and cannot be sampled", name)
		}
		vars[i] = v
	}
	return &recorder{
		inst:   inst,
		vars:   vars,
		result: &Result{Columns: names},
	}, nil
}

func (r *recorder) sample(t float64) error {
	row := make([]float64, len(r.vars))
	for j, v := range r.vars {
		vr := []uint32{v.ValueReference}
		switch v.Type() {
		case modeldesc.TypeReal:
			vals, err := r.inst.GetReal(vr)
			if err != nil {
				return err
			}
			row[j] = vals[0]
		case modeldesc.TypeInteger:
			vals, err := r.inst.GetInteger(vr)
			if err != nil {
				return err
			}
			row[j] = float64(vals[0])
		case modeldesc.TypeBoolean:
			vals, err := r.inst.GetBoolean(vr)
			if err != nil {
				return err
			}
			if vals[0] {
				row[j] = 1
			}
		}
	}
	r.result.Times = append(r.result.Times, t)
	r.result.Values = append(r.result.Values, row)
	return nil
}
