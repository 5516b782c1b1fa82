// Package reqctx 提供请求级上下文（Context）以及保存"当前上下文"的存储（Storage）。
//
// Go 没有线程局部变量，因此执行单元被显式建模为 Lane：每个工作协程持有一个 Lane，
// Lane 通过 context.Context 传递给它执行的代码，任意嵌套的代码都可以通过
// reqctx.Current(ctx) 读取当前的请求上下文，而不需要显式传递 *Context。
//
// 基本用法：
//
//	lane := reqctx.Default().NewLane("main")
//	defer reqctx.Default().Release(lane)
//	ctx := reqctx.WithLane(context.Background(), lane)
//
//	rc := reqctx.New(reqctx.Operation{Method: "GET", Path: "/users"})
//	scope, err := rc.Push(ctx)
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	reqctx.Current(ctx) == rc // true
//
// 约束：
//   - 每个 Lane 同一时刻最多只有一个当前上下文
//   - Push/Close 严格按照后进先出的顺序嵌套，违反时 Close 会 panic（*IllegalStateError）
//   - Replace 是单次原子交换，仅供跨 Lane 传播时使用，调用者负责恢复旧值
package reqctx
