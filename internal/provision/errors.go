package provision

import (
	"errors"
	"fmt"
)

// ErrProvisionFailed matches every *ProvisionError.
var ErrProvisionFailed = errors.New("provision failed")

// ProvisionError is returned when a runtime could not be extracted to disk.
type ProvisionError struct {
	Component string
	Target    string
	Err       error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("install %s to %s: %v", e.Component, e.Target, e.Err)
}

func (e *ProvisionError) Unwrap() []error {
	return []error{ErrProvisionFailed, e.Err}
}
