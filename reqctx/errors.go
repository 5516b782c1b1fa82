package reqctx

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoLane       = errors.New("reqctx: context.Context carries no lane")
	ErrIllegalState = errors.New("reqctx: illegal state")
)

// IllegalStateError reports misuse of the context storage: a refused push, a
// scope closed out of order, or a scope closed twice. It is a programming
// error and never a request failure.
type IllegalStateError struct {
	Op   string
	Lane string
	Msg  string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("reqctx: illegal state on %s (lane %s): %s", e.Op, e.Lane, e.Msg)
}

func (e *IllegalStateError) Is(target error) bool {
	return target == ErrIllegalState
}

func illegalState(op string, l *Lane, format string, args ...any) error {
	return errors.WithStack(&IllegalStateError{
		Op:   op,
		Lane: l.String(),
		Msg:  fmt.Sprintf(format, args...),
	})
}
