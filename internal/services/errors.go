package services

import (
	"errors"
	"fmt"
)

// ErrInvalidRegion is returned when provisioning is asked for a region
// outside the supported set. Provisioning is strict about regions; runtime
// routing falls back to the default shard instead.
var ErrInvalidRegion = errors.New("unsupported region")

// Saga step identifiers reported by StepError.
const (
	StepIdentity = "identity"
	StepRouting  = "routing"
	StepShard    = "shard"
	StepProfile  = "profile"
	StepTenant   = "tenant"
	StepClaims   = "claims"
)

// StepError reports which provisioning step failed. Every step is an
// idempotent upsert, so the caller can retry the whole provisioning call.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
