package fmi2

// EventInfo carries the outcome of an fmi2NewDiscreteStates call.
type EventInfo struct {
	NewDiscreteStatesNeeded         bool
	TerminateSimulation             bool
	NominalsChanged                 bool
	ValuesOfContinuousStatesChanged bool
	NextEventTimeDefined            bool
	NextEventTime                   float64
}

// Backend abstracts the FMI 2.0 C API of a model instance. The binding
// package implements it over the FMU's native shared library; the refmodel
// package implements it in-process. Implementations are not safe for
// concurrent use; FMU instances are not thread-safe.
type Backend interface {
	SetupExperiment(toleranceDefined bool, tolerance, startTime float64, stopDefined bool, stopTime float64) Status
	EnterInitializationMode() Status
	ExitInitializationMode() Status
	Terminate() Status
	Reset() Status
	FreeInstance()

	GetReal(vrs []uint32, values []float64) Status
	SetReal(vrs []uint32, values []float64) Status
	GetInteger(vrs []uint32, values []int32) Status
	SetInteger(vrs []uint32, values []int32) Status
	GetBoolean(vrs []uint32, values []bool) Status
	SetBoolean(vrs []uint32, values []bool) Status
	GetString(vrs []uint32, values []string) Status
	SetString(vrs []uint32, values []string) Status

	// Co-simulation.
	DoStep(currentTime, stepSize float64, noSetFMUStatePriorToCurrentPoint bool) Status

	// Model exchange.
	SetTime(t float64) Status
	SetContinuousStates(x []float64) Status
	GetContinuousStates(x []float64) Status
	GetDerivatives(dx []float64) Status
	GetEventIndicators(z []float64) Status
	EnterEventMode() Status
	NewDiscreteStates(info *EventInfo) Status
	EnterContinuousTimeMode() Status
	CompletedIntegratorStep(noSetFMUStatePriorToCurrentPoint bool) (enterEventMode, terminateSimulation bool, st Status)
}
