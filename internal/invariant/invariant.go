// Package invariant reports contract violations that indicate a bug in the
// caller rather than a condition the program can recover from.
package invariant

import "fmt"

// Violation is the panic value raised when an invariant does not hold.
type Violation struct {
	Msg string
}

func (v *Violation) Error() string { return "invariant violated: " + v.Msg }

// Check panics with a *Violation if cond is false.
func Check(cond bool, format string, args ...any) {
	if !cond {
		panic(&Violation{Msg: fmt.Sprintf(format, args...)})
	}
}

// Failf always panics with a *Violation.
func Failf(format string, args ...any) {
	panic(&Violation{Msg: fmt.Sprintf(format, args...)})
}
