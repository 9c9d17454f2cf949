package neutron

import (
	"errors"
	"fmt"
)

// NotFoundError indicates the referenced resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError indicates the operation conflicts with the current state of
// the resource, e.g. removing a router interface whose port is still in use.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s is in a conflicting state", e.Resource, e.ID)
}

// ProvisionError indicates a backend failure while creating or deleting a
// resource. Resource and Parent identify the failed step so compensating
// actions can target the right resources.
type ProvisionError struct {
	Op       string
	Resource string
	Parent   string
	Err      error
}

func (e *ProvisionError) Error() string {
	if e.Parent != "" {
		return fmt.Sprintf("%s %s (parent %s): %v", e.Op, e.Resource, e.Parent, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsProvisionError reports whether err is a ProvisionError.
func IsProvisionError(err error) bool {
	var p *ProvisionError
	return errors.As(err, &p)
}
