package errors

import (
	"encoding/hex"
	stderrors "errors"
	"fmt"
)

// ForkDetectedError is returned when a block's parent hash does not match the
// stored block one height below it. It is expected and recoverable.
type ForkDetectedError struct {
	ParentHeight uint64
	ParentHash   [32]byte
}

func (e *ForkDetectedError) Error() string {
	return fmt.Sprintf("unknown parent block (%d, 0x%s)", e.ParentHeight, hex.EncodeToString(e.ParentHash[:]))
}

// DataIntegrityError reports stored data that cannot be decoded, such as a
// hash read back with the wrong length. Retrying cannot fix it.
type DataIntegrityError struct {
	Table  string
	Column string
	Detail string
}

func (e *DataIntegrityError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("data integrity: %s: %s", e.Column, e.Detail)
	}
	return fmt.Sprintf("data integrity: %s.%s: %s", e.Table, e.Column, e.Detail)
}

// TransportError wraps a failure talking to the remote chain-data source.
type TransportError struct {
	Call string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc %s: %v", e.Call, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError is a startup configuration problem.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsForkDetected reports whether err carries a ForkDetectedError and returns it.
func IsForkDetected(err error) (*ForkDetectedError, bool) {
	var fork *ForkDetectedError
	if stderrors.As(err, &fork) {
		return fork, true
	}
	return nil, false
}

// IsDataIntegrity reports whether err carries a DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var integrity *DataIntegrityError
	return stderrors.As(err, &integrity)
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var transport *TransportError
	return stderrors.As(err, &transport)
}
