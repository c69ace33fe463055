package fmi2

import "fmt"

// Status mirrors the fmi2Status enumeration of the C API.
type Status int32

const (
	StatusOK Status = iota
	StatusWarning
	StatusDiscard
	StatusError
	StatusFatal
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusDiscard:
		return "discard"
	case StatusError:
		return "error"
	case StatusFatal:
		return "fatal"
	case StatusPending:
		return "pending"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Kind selects which of the two FMI execution modes an instance runs in.
type Kind int32

const (
	ModelExchange Kind = iota
	CoSimulation
)

func (k Kind) String() string {
	if k == CoSimulation {
		return "co-simulation"
	}
	return "model-exchange"
}
