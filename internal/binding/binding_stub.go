//go:build !linux && !darwin

package binding

import (
	"errors"

	"github.com/san-kum/fmulab/internal/fmi2"
	"github.com/san-kum/fmulab/internal/logging"
)

// ErrUnsupported is returned on platforms without dynamic loading support.
var ErrUnsupported = errors.New("binding: native FMU loading is not supported on this platform")

type Library struct{}

// Component satisfies fmi2.Backend through the embedded interface so callers
// type-check on every platform; it is never constructed here.
type Component struct{ fmi2.Backend }

func Open(path string) (*Library, error) { return nil, ErrUnsupported }

func (l *Library) Version() string { return "" }

func (l *Library) Close() error { return nil }

func (l *Library) Instantiate(name string, kind fmi2.Kind, guid, resourceURI string, visible, loggingOn bool, log logging.Logger) (*Component, error) {
	return nil, ErrUnsupported
}
