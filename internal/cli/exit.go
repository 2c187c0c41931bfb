package cli

import "fmt"

// ExitError ends the process with Code. Whatever explains the failure has
// already been written.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
