package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrBounds       = errors.New("protocol: access exceeds buffer bounds")
	ErrStaleHandle  = errors.New("protocol: stale handle")
	ErrMalformed    = errors.New("protocol: malformed value")
	ErrUnknownCode  = errors.New("protocol: unknown command code")
	ErrCounterLimit = errors.New("protocol: command counter limit reached")
)

// BoundsError reports a read or write that would exceed the current store.
type BoundsError struct {
	Op     string
	Offset int
	Need   int
	Cap    int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("protocol: %s of %d bytes at offset %d exceeds capacity %d", e.Op, e.Need, e.Offset, e.Cap)
}

func (e *BoundsError) Is(target error) bool {
	return target == ErrBounds
}

// StaleHandleError reports a handle or native identity that no longer resolves.
type StaleHandleError struct {
	Kind   string
	Handle uint32
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("protocol: %s handle %d does not resolve", e.Kind, e.Handle)
}

func (e *StaleHandleError) Is(target error) bool {
	return target == ErrStaleHandle
}

// MalformedValueError reports a field that fails a domain check.
type MalformedValueError struct {
	Command string
	Field   string
	Reason  string
}

func (e *MalformedValueError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("protocol: command=%s: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("protocol: command=%s field=%s: %s", e.Command, e.Field, e.Reason)
}

func (e *MalformedValueError) Is(target error) bool {
	return target == ErrMalformed
}
