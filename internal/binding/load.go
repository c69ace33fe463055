package binding

import (
	"fmt"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/fmu"
	"github.com/san-kum/fmulab/internal/logging"
)

// ModelInstance bundles a loaded library with a live instance. Close frees
// the instance and then unloads the library.
type ModelInstance struct {
	Lib  *Library
	Inst *fmi2.Instance
}

// Instantiate resolves the platform binary of an extracted FMU, loads it and
// creates an instance of the requested kind. The FMU must stay open for the
// lifetime of the returned handle.
func Instantiate(f *fmu.FMU, instanceName string, kind fmi2.Kind, loggingOn bool, log logging.Logger) (*ModelInstance, error) {
	md := f.Description
	ident := ""
	switch kind {
	case fmi2.CoSimulation:
		if md.CoSimulation == nil {
			return nil, fmt.Errorf("binding: %s does not support co-simulation", md.ModelName)
		}
		ident = md.CoSimulation.ModelIdentifier
	case fmi2.ModelExchange:
		if md.ModelExchange == nil {
			return nil, fmt.Errorf("binding: %s does not support model exchange", md.ModelName)
		}
		ident = md.ModelExchange.ModelIdentifier
	default:
		return nil, fmt.Errorf("binding: unknown kind %d", kind)
	}

	path, err := f.BinaryPath(ident)
	if err != nil {
		return nil, err
	}
	lib, err := Open(path)
	if err != nil {
		return nil, err
	}
	comp, err := lib.Instantiate(instanceName, kind, md.GUID, f.ResourcesURI(), false, loggingOn, log)
	if err != nil {
		lib.Close()
		return nil, err
	}
	mi := &ModelInstance{
		Lib:  lib,
		Inst: fmi2.NewInstance(instanceName, kind, md, comp, fmi2.WithLogger(log)),
	}
	return mi, nil
}

// Close frees the instance and unloads the shared library.
func (m *ModelInstance) Close() error {
	m.Inst.Close()
	return m.Lib.Close()
}
