package reply

import (
	"errors"
	"fmt"
)

// ErrInvalidStatus indicates a context failure constructed with a gRPC status
// code outside 1 to 16.
var ErrInvalidStatus = errors.New("invalid gRPC status code")

// ContextFailure is a user-raisable command failure with a user-visible
// description and an optional gRPC status code. It is recoverable: the entity
// instance continues after the failure reply.
type ContextFailure struct {
	description    string
	grpcStatusCode int32
}

// NewContextFailure creates a failure without an explicit status code.
func NewContextFailure(description string) *ContextFailure {
	return &ContextFailure{description: description}
}

// NewContextFailureWithStatus creates a failure with a gRPC status code. The
// code must be 1 to 16; OK is forbidden.
func NewContextFailureWithStatus(description string, grpcStatusCode int32) (*ContextFailure, error) {
	if grpcStatusCode < 1 || grpcStatusCode > 16 {
		return nil, fmt.Errorf("%w: %d is not in 1..16", ErrInvalidStatus, grpcStatusCode)
	}
	return &ContextFailure{description: description, grpcStatusCode: grpcStatusCode}, nil
}

// Error implements error.
func (f *ContextFailure) Error() string {
	return f.description
}

// Description returns the user-visible failure text.
func (f *ContextFailure) Description() string {
	return f.description
}

// GrpcStatusCode returns the status code, zero when unset.
func (f *ContextFailure) GrpcStatusCode() int32 {
	return f.grpcStatusCode
}
