package battlefield

import "fmt"

type ErrPermissionDenied struct {
	Reason string
}

func (e *ErrPermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Reason)
}

func IsPermissionDenied(err error) bool {
	_, ok := err.(*ErrPermissionDenied)
	return ok
}

type ErrValidation struct {
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func IsValidation(err error) bool {
	_, ok := err.(*ErrValidation)
	return ok
}
