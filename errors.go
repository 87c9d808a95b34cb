package blipkit

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is returned when a resource could not be allocated during
	// initialization. Nothing was changed; the caller may retry later.
	ErrAllocation = errors.New("allocation failed")
	// ErrInvalidAttribute is returned for an attribute that the receiver does
	// not know.
	ErrInvalidAttribute = errors.New("invalid attribute")
	// ErrInvalidValue is returned for a value out of range for an attribute
	// or a parameter.
	ErrInvalidValue = errors.New("invalid value")
	// ErrInvalidReturnValue is returned when a caller supplied callback did not
	// acknowledge successfully.
	ErrInvalidReturnValue = errors.New("invalid return value")
	// ErrInterpreterFault matches every *FaultError.
	ErrInterpreterFault = errors.New("interpreter fault")
	// ErrDisposed is returned by operations on a disposed context.
	ErrDisposed = errors.New("context disposed")
)

// FaultKind tells why a track program could not continue.
type FaultKind int

const (
	FaultStackOverflow FaultKind = iota
	FaultStackUnderflow
	FaultUnknownOpcode
	FaultTruncated
	FaultRunaway
)

var faultNames = [...]string{
	FaultStackOverflow:  "call stack overflow",
	FaultStackUnderflow: "return without call",
	FaultUnknownOpcode:  "unknown opcode",
	FaultTruncated:      "program truncated",
	FaultRunaway:        "no step within instruction budget",
}

func (k FaultKind) String() string {
	if k < 0 || int(k) >= len(faultNames) {
		return fmt.Sprintf("fault(%d)", int(k))
	}
	return faultNames[k]
}

// FaultError reports a corrupt or incompatible compiled program. The
// interpreter that returned it is done.
type FaultError struct {
	Kind   FaultKind
	PC     int   // address of the offending opcode
	Opcode int32 // the opcode word at PC, if any
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("interpreter fault at %d (opcode %d): %v", e.PC, e.Opcode, e.Kind)
}

func (e *FaultError) Is(target error) bool {
	return target == ErrInterpreterFault
}
