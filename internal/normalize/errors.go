package normalize

import (
	"errors"
	"fmt"
)

// NotFoundError means the service rejected the variant itself: it cannot be
// normalized. The orchestrator classifies these records as unannotatable.
type NotFoundError struct {
	Variant string
	Reason  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not normalizable: %s", e.Variant, e.Reason)
}

// ServiceError means the normalization service could not be reached or kept
// erroring. Unavailable distinguishes "abort the batch" from "transient,
// retry the batch later".
type ServiceError struct {
	Variant     string
	Unavailable bool
	Err         error
}

func (e *ServiceError) Error() string {
	kind := "transient failure"
	if e.Unavailable {
		kind = "service unavailable"
	}
	return fmt.Sprintf("%s: normalization %s: %v", e.Variant, kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err marks a variant as not normalizable.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnavailable reports whether err means the service is down and the
// remaining batch should be aborted.
func IsUnavailable(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Unavailable
}
