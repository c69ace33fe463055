//go:build linux || darwin

package binding

import (
	"unsafe"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/logging"
)

// Component is a live native model instance. It satisfies fmi2.Backend; all
// state-machine discipline lives in fmi2.Instance, this layer only marshals
// arguments across the C boundary.
type Component struct {
	lib  *Library
	log  logging.Logger
	name string

	c         uintptr
	callbacks *callbackFunctions

	// NUL-terminated copies of strings passed to fmi2SetString, kept alive
	// until the next call in case the model retains the pointers.
	stringArena [][]byte
}

var _ fmi2.Backend = (*Component)(nil)

func (c *Component) SetupExperiment(toleranceDefined bool, tolerance, startTime float64, stopDefined bool, stopTime float64) fmi2.Status {
	return fmi2.Status(c.lib.setupExperiment(c.c, boolArg(toleranceDefined), tolerance, startTime, boolArg(stopDefined), stopTime))
}

func (c *Component) EnterInitializationMode() fmi2.Status {
	return fmi2.Status(c.lib.enterInit(c.c))
}

func (c *Component) ExitInitializationMode() fmi2.Status {
	return fmi2.Status(c.lib.exitInit(c.c))
}

func (c *Component) Terminate() fmi2.Status {
	return fmi2.Status(c.lib.terminate(c.c))
}

func (c *Component) Reset() fmi2.Status {
	return fmi2.Status(c.lib.reset(c.c))
}

func (c *Component) FreeInstance() {
	if c.c == 0 {
		return
	}
	c.lib.freeInstance(c.c)
	c.c = 0
	c.stringArena = nil
}

func (c *Component) GetReal(vrs []uint32, values []float64) fmi2.Status {
	return fmi2.Status(c.lib.getReal(c.c, vrs, uintptr(len(vrs)), values))
}

func (c *Component) SetReal(vrs []uint32, values []float64) fmi2.Status {
	return fmi2.Status(c.lib.setReal(c.c, vrs, uintptr(len(vrs)), values))
}

func (c *Component) GetInteger(vrs []uint32, values []int32) fmi2.Status {
	return fmi2.Status(c.lib.getInteger(c.c, vrs, uintptr(len(vrs)), values))
}

func (c *Component) SetInteger(vrs []uint32, values []int32) fmi2.Status {
	return fmi2.Status(c.lib.setInteger(c.c, vrs, uintptr(len(vrs)), values))
}

func (c *Component) GetBoolean(vrs []uint32, values []bool) fmi2.Status {
	buf := make([]int32, len(vrs))
	st := fmi2.Status(c.lib.getBoolean(c.c, vrs, uintptr(len(vrs)), buf))
	for i, v := range buf {
		values[i] = v != 0
	}
	return st
}

func (c *Component) SetBoolean(vrs []uint32, values []bool) fmi2.Status {
	buf := make([]int32, len(values))
	for i, v := range values {
		buf[i] = boolArg(v)
	}
	return fmi2.Status(c.lib.setBoolean(c.c, vrs, uintptr(len(vrs)), buf))
}

func (c *Component) GetString(vrs []uint32, values []string) fmi2.Status {
	ptrs := make([]uintptr, len(vrs))
	st := fmi2.Status(c.lib.getString(c.c, vrs, uintptr(len(vrs)), ptrs))
	for i, p := range ptrs {
		values[i] = goString(p)
	}
	return st
}

func (c *Component) SetString(vrs []uint32, values []string) fmi2.Status {
	c.stringArena = c.stringArena[:0]
	ptrs := make([]uintptr, len(values))
	for i, s := range values {
		buf := append([]byte(s), 0)
		c.stringArena = append(c.stringArena, buf)
		ptrs[i] = uintptr(unsafe.Pointer(&buf[0]))
	}
	return fmi2.Status(c.lib.setString(c.c, vrs, uintptr(len(vrs)), ptrs))
}

func (c *Component) DoStep(currentTime, stepSize float64, noSetFMUStatePriorToCurrentPoint bool) fmi2.Status {
	if c.lib.doStep == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.doStep(c.c, currentTime, stepSize, boolArg(noSetFMUStatePriorToCurrentPoint)))
}

func (c *Component) SetTime(t float64) fmi2.Status {
	if c.lib.setTime == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.setTime(c.c, t))
}

func (c *Component) SetContinuousStates(x []float64) fmi2.Status {
	if c.lib.setContinuousStates == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.setContinuousStates(c.c, x, uintptr(len(x))))
}

func (c *Component) GetContinuousStates(x []float64) fmi2.Status {
	if c.lib.getContinuousStates == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.getContinuousStates(c.c, x, uintptr(len(x))))
}

func (c *Component) GetDerivatives(dx []float64) fmi2.Status {
	if c.lib.getDerivatives == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.getDerivatives(c.c, dx, uintptr(len(dx))))
}

func (c *Component) GetEventIndicators(z []float64) fmi2.Status {
	if c.lib.getEventIndicators == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.getEventIndicators(c.c, z, uintptr(len(z))))
}

func (c *Component) EnterEventMode() fmi2.Status {
	if c.lib.enterEventMode == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.enterEventMode(c.c))
}

func (c *Component) NewDiscreteStates(info *fmi2.EventInfo) fmi2.Status {
	if c.lib.newDiscreteStates == nil {
		return fmi2.StatusError
	}
	var ci eventInfoC
	st := fmi2.Status(c.lib.newDiscreteStates(c.c, &ci))
	info.NewDiscreteStatesNeeded = ci.NewDiscreteStatesNeeded != 0
	info.TerminateSimulation = ci.TerminateSimulation != 0
	info.NominalsChanged = ci.NominalsOfContinuousStatesChanged != 0
	info.ValuesOfContinuousStatesChanged = ci.ValuesOfContinuousStatesChanged != 0
	info.NextEventTimeDefined = ci.NextEventTimeDefined != 0
	info.NextEventTime = ci.NextEventTime
	return st
}

func (c *Component) EnterContinuousTimeMode() fmi2.Status {
	if c.lib.enterContinuousTime == nil {
		return fmi2.StatusError
	}
	return fmi2.Status(c.lib.enterContinuousTime(c.c))
}

func (c *Component) CompletedIntegratorStep(noSetFMUStatePriorToCurrentPoint bool) (enterEventMode, terminateSimulation bool, st fmi2.Status) {
	if c.lib.completedIntegrator == nil {
		return false, false, fmi2.StatusError
	}
	var enter, term int32
	st = fmi2.Status(c.lib.completedIntegrator(c.c, boolArg(noSetFMUStatePriorToCurrentPoint), &enter, &term))
	return enter != 0, term != 0, st
}
