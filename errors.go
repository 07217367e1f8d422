package ltesim

// errors.go defines the error kinds raised by scenario construction and
// by the reduction of flow counters.

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration is matched (errors.Is) by every *ConfigurationError
var ErrConfiguration = errors.New("configuration error")

// ErrDataIntegrity is matched (errors.Is) by every *DataIntegrityError
var ErrDataIntegrity = errors.New("data integrity error")

// A ConfigurationError reports a parameter or plan element that cannot be used
// to build a scenario. It is always raised before a simulated run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (ce *ConfigurationError) Error() string {
	if len(ce.Field) == 0 {
		return fmt.Sprintf("configuration error: %s", ce.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", ce.Field, ce.Reason)
}

func (ce *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// configErr is a shorthand constructor
func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// A DataIntegrityError reports raw counters that violate rxPackets <= txPackets.
// The counters are reported as observed, never corrected.
type DataIntegrityError struct {
	FlowID    FlowID
	TxPackets uint64
	RxPackets uint64
}

func (de *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error: flow %d received %d packets but transmitted %d",
		de.FlowID, de.RxPackets, de.TxPackets)
}

func (de *DataIntegrityError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// An UnclassifiedFlowError reports counters kept under a FlowID that the
// counter source cannot map back to a five-tuple
type UnclassifiedFlowError struct {
	FlowID FlowID
}

func (ue *UnclassifiedFlowError) Error() string {
	return fmt.Sprintf("data integrity error: flow %d has counters but no five-tuple", ue.FlowID)
}

func (ue *UnclassifiedFlowError) Is(target error) bool {
	return target == ErrDataIntegrity
}

// IsUndefined reports whether a derived metric carries the not-a-number sentinel
// used when its formula divides by zero.
func IsUndefined(v float64) bool {
	return math.IsNaN(v)
}
