package replay

import "errors"

// Trace-consistency errors are fatal: the trace is malformed and replay can't continue.
var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrMissingAppID   = errors.New("transaction has no application id")
	ErrMissingState   = errors.New("no state container for application")
	ErrMalformedUnit  = errors.New("malformed opcode trace unit")
)

var ErrNotImplemented = errors.New("not implemented")
