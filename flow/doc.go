// Package flow 提供一个最多发出一个值的异步流水线（Mono）。
//
// Mono 由数据源、操作符和钩子组装而成，在被订阅之前不会执行任何逻辑。
// 所有用户回调（数据源、Map 函数、Do* 钩子）都经过订阅的拦截器链调用，
// propagation 包正是通过这个钩子点，让请求上下文在执行回调的 lane 上成为当前上下文。
//
// 基本用法：
//
//	m := flow.Map(flow.Just(21), func(ctx context.Context, v int) (int, error) {
//	    return v * 2, nil
//	}).PublishOn(pool)
//
//	v, err := m.Block(ctx) // 42, nil
//
// 回调收到的 context.Context 携带其所在的 lane 以及订阅的取消信号。
// 只有当本次订阅的所有回调在所有 lane 上都已返回时，订阅才算结束，其 Future 才会完成。
//
// 注意：
//   - 取消信号（DoOnCancel，以及取消后的 DoFinally）不经过拦截器链，不会看到传播的请求上下文
//   - 调度器拒绝任务时（例如已关闭的 scheduler.Pool），流水线以拒绝的错误结束
package flow
