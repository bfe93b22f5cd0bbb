package lagshed

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is the kind of every validation failure returned by the
// configuration setters, Apply and LoadConfig.
var ErrInvalidArgument = errors.New("invalid argument")

// ArgumentError describes a rejected parameter value.
type ArgumentError struct {
	Param  string // "threshold", "interval", "smoothing factor", ...
	Value  any
	Reason string // e.g. "must be greater than 10ms"
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("lagshed: invalid %s %v: %s", e.Param, e.Value, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidArgument) match.
func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

func invalid(param string, value any, reason string) error {
	return &ArgumentError{Param: param, Value: value, Reason: reason}
}
