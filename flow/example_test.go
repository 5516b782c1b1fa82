package flow_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/saltfishpr/resilience/flow"
	"github.com/saltfishpr/resilience/scheduler"
)

func ExampleMap() {
	pool := scheduler.NewSingle("example")
	defer pool.Close()

	m := flow.Map(flow.Just("hello").PublishOn(pool), func(_ context.Context, s string) (string, error) {
		return strings.ToUpper(s), nil
	})
	v, err := m.Block(context.Background())
	fmt.Println(v, err)
	// Output:
	// HELLO <nil>
}

func ExampleMono_DoFinally() {
	m := flow.Just(1).
		DoOnSuccess(func(_ context.Context, v int) { fmt.Println("success", v) }).
		DoFinally(func(sig flow.Signal) { fmt.Println("finally", sig) })
	_, _ = m.Block(context.Background())
	// Output:
	// success 1
	// finally complete
}
