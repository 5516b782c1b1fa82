package routine

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

func Recover(cleanups ...func(r any)) {
	if r := recover(); r != nil {
		for _, cleanup := range cleanups {
			cleanup(r)
		}
	}
}

type Recovered struct {
	Value   any
	Callers []uintptr
}

func NewRecovered(skip int, value any) *Recovered {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	return &Recovered{
		Value:   value,
		Callers: callers[:n],
	}
}

func (p *Recovered) AsError() error {
	if p == nil {
		return nil
	}
	return &RecoveredError{p}
}

// RecoveredError is the error form of a recovered panic. If the panic value
// was itself an error it is reachable through errors.Is / errors.As.
type RecoveredError struct {
	*Recovered
}

func (e *RecoveredError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *RecoveredError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func (e *RecoveredError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s\nstacktrace:%+v", e.Error(), e.StackTrace())
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

func (e *RecoveredError) StackTrace() errors.StackTrace {
	if e == nil {
		return nil
	}
	frames := make([]errors.Frame, len(e.Callers))
	for i, pc := range e.Callers {
		frames[i] = errors.Frame(pc)
	}
	return frames
}
