//go:build linux || darwin

// Package binding loads an FMU's native shared library and exposes it as an
// fmi2.Backend. It binds the fmi2 C entry points at load time with purego,
// so no cgo is required.
package binding

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/logging"
)

// LogFunc receives log lines emitted by the model through the fmi2 callback
// logger.
type LogFunc func(status fmi2.Status, category, message string)

// Library is a loaded FMU shared library with its fmi2 entry points resolved.
type Library struct {
	handle uintptr

	getVersion   func() string
	getTypes     func() string
	instantiate  func(name string, fmuType int32, guid string, resourceURI string, callbacks uintptr, visible int32, loggingOn int32) uintptr
	freeInstance func(c uintptr)

	setupExperiment func(c uintptr, tolDefined int32, tol float64, start float64, stopDefined int32, stop float64) int32
	enterInit       func(c uintptr) int32
	exitInit        func(c uintptr) int32
	terminate       func(c uintptr) int32
	reset           func(c uintptr) int32

	getReal    func(c uintptr, vrs []uint32, nvr uintptr, values []float64) int32
	setReal    func(c uintptr, vrs []uint32, nvr uintptr, values []float64) int32
	getInteger func(c uintptr, vrs []uint32, nvr uintptr, values []int32) int32
	setInteger func(c uintptr, vrs []uint32, nvr uintptr, values []int32) int32
	getBoolean func(c uintptr, vrs []uint32, nvr uintptr, values []int32) int32
	setBoolean func(c uintptr, vrs []uint32, nvr uintptr, values []int32) int32
	getString  func(c uintptr, vrs []uint32, nvr uintptr, values []uintptr) int32
	setString  func(c uintptr, vrs []uint32, nvr uintptr, values []uintptr) int32

	doStep func(c uintptr, t float64, h float64, noSetPrior int32) int32

	setTime             func(c uintptr, t float64) int32
	setContinuousStates func(c uintptr, x []float64, nx uintptr) int32
	getContinuousStates func(c uintptr, x []float64, nx uintptr) int32
	getDerivatives      func(c uintptr, dx []float64, nx uintptr) int32
	getEventIndicators  func(c uintptr, z []float64, nz uintptr) int32
	enterEventMode      func(c uintptr) int32
	newDiscreteStates   func(c uintptr, info *eventInfoC) int32
	enterContinuousTime func(c uintptr) int32
	completedIntegrator func(c uintptr, noSetPrior int32, enterEventMode *int32, terminate *int32) int32
}

// eventInfoC mirrors the fmi2EventInfo C struct layout.
type eventInfoC struct {
	NewDiscreteStatesNeeded           int32
	TerminateSimulation               int32
	NominalsOfContinuousStatesChanged int32
	ValuesOfContinuousStatesChanged   int32
	NextEventTimeDefined              int32
	_                                 int32 // padding to align nextEventTime
	NextEventTime                     float64
}

// callbackFunctions mirrors fmi2CallbackFunctions. The memory callbacks point
// straight at libc calloc/free; stepFinished is null (synchronous DoStep).
type callbackFunctions struct {
	Logger               uintptr
	AllocateMemory       uintptr
	FreeMemory           uintptr
	StepFinished         uintptr
	ComponentEnvironment uintptr
}

// Open loads the shared library at path and resolves the fmi2 symbols. Mode
// subsets (CS-only, ME-only FMUs) leave the absent entry points nil; calling
// one returns fmi2.StatusError.
func Open(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("binding: load %s: %w", path, err)
	}
	lib := &Library{handle: handle}

	required := map[string]any{
		"fmi2GetVersion":              &lib.getVersion,
		"fmi2Instantiate":             &lib.instantiate,
		"fmi2FreeInstance":            &lib.freeInstance,
		"fmi2SetupExperiment":         &lib.setupExperiment,
		"fmi2EnterInitializationMode": &lib.enterInit,
		"fmi2ExitInitializationMode":  &lib.exitInit,
		"fmi2Terminate":               &lib.terminate,
		"fmi2Reset":                   &lib.reset,
		"fmi2GetReal":                 &lib.getReal,
		"fmi2SetReal":                 &lib.setReal,
		"fmi2GetInteger":              &lib.getInteger,
		"fmi2SetInteger":              &lib.setInteger,
		"fmi2GetBoolean":              &lib.getBoolean,
		"fmi2SetBoolean":              &lib.setBoolean,
		"fmi2GetString":               &lib.getString,
		"fmi2SetString":               &lib.setString,
	}
	for name, fptr := range required {
		if err := register(handle, name, fptr); err != nil {
			return nil, err
		}
	}

	optional := map[string]any{
		"fmi2GetTypesPlatform":        &lib.getTypes,
		"fmi2DoStep":                  &lib.doStep,
		"fmi2SetTime":                 &lib.setTime,
		"fmi2SetContinuousStates":     &lib.setContinuousStates,
		"fmi2GetContinuousStates":     &lib.getContinuousStates,
		"fmi2GetDerivatives":          &lib.getDerivatives,
		"fmi2GetEventIndicators":      &lib.getEventIndicators,
		"fmi2EnterEventMode":          &lib.enterEventMode,
		"fmi2NewDiscreteStates":       &lib.newDiscreteStates,
		"fmi2EnterContinuousTimeMode": &lib.enterContinuousTime,
		"fmi2CompletedIntegratorStep": &lib.completedIntegrator,
	}
	for name, fptr := range optional {
		if _, err := purego.Dlsym(handle, name); err != nil {
			continue
		}
		if err := register(handle, name, fptr); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func register(handle uintptr, name string, fptr any) error {
	if _, err := purego.Dlsym(handle, name); err != nil {
		return fmt.Errorf("binding: symbol %s: %w", name, err)
	}
	purego.RegisterLibFunc(fptr, handle, name)
	return nil
}

// Version returns the fmi2GetVersion string, "2.0" for compliant FMUs.
func (l *Library) Version() string { return l.getVersion() }

// Close releases the library handle.
func (l *Library) Close() error {
	if l.handle == 0 {
		return nil
	}
	err := purego.Dlclose(l.handle)
	l.handle = 0
	return err
}

// Instantiate creates a model instance inside the library and wraps it as an
// fmi2.Backend.
func (l *Library) Instantiate(name string, kind fmi2.Kind, guid, resourceURI string, visible, loggingOn bool, log logging.Logger) (*Component, error) {
	if log == nil {
		log = logging.Nop{}
	}
	comp := &Component{lib: l, log: log, name: name}
	comp.callbacks = &callbackFunctions{
		Logger:         newLoggerCallback(comp),
		AllocateMemory: libcSymbol("calloc"),
		FreeMemory:     libcSymbol("free"),
	}

	c := l.instantiate(name, int32(kind), guid, resourceURI,
		uintptr(unsafe.Pointer(comp.callbacks)), boolArg(visible), boolArg(loggingOn))
	if c == 0 {
		return nil, fmt.Errorf("binding: fmi2Instantiate returned NULL for %s", name)
	}
	comp.c = c
	return comp, nil
}

// libcSymbol resolves a symbol from the already-loaded process image, so the
// model's memory callbacks land in the platform allocator.
func libcSymbol(name string) uintptr {
	addr, err := purego.Dlsym(purego.RTLD_DEFAULT, name)
	if err != nil {
		return 0
	}
	return addr
}

// newLoggerCallback bridges the fmi2 logger callback into the component's
// logger. The C callback is variadic; the trailing format arguments are not
// expanded, the raw message is logged as-is.
func newLoggerCallback(comp *Component) uintptr {
	return purego.NewCallback(func(env, instanceName uintptr, status int32, category, message uintptr) uintptr {
		st := fmi2.Status(status)
		msg := goString(message)
		cat := goString(category)
		switch st {
		case fmi2.StatusOK:
			comp.log.Debugf("[%s] %s", cat, msg)
		case fmi2.StatusWarning:
			comp.log.Warnf("[%s] %s", cat, msg)
		default:
			comp.log.Errorf("[%s] %s: %s", cat, st, msg)
		}
		return 0
	})
}

func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var out []byte
	for ptr := p; ; ptr++ {
		b := *(*byte)(unsafe.Pointer(ptr))
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	return string(out)
}

func boolArg(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
