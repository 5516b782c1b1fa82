// Package retry 提供了重试编排：按照可插拔的重试决策（Decision）和退避策略（Backoff）
// 重复执行一个逻辑请求的各次尝试。
//
// 基本用法：
//
//	result, err := retry.Do(ctx, func(ctx context.Context) (string, error) {
//	    return apiCall(ctx)
//	})
//
// 异步操作与请求上下文：
//
//	r := retry.New(retry.OnError[string](),
//	    retry.WithDefaultMaxAttempts(5),
//	    retry.WithBackoffSupplier(func() retry.Backoff {
//	        return retry.WithJitter(retry.Exponential(10*time.Millisecond, time.Second),
//	            -5*time.Millisecond, 5*time.Millisecond, nil)
//	    }),
//	)
//	exec := r.Execute(ctx, rc, func(ctx context.Context) flow.Mono[string] {
//	    return client.Get(ctx, "/users")
//	})
//	v, err := exec.Get()
//
// 每次尝试都在 rc 派生出的请求上下文中执行（属性 retry.attempt 为尝试次数），
// 该上下文在操作返回的 Mono 的所有回调中都是当前上下文。退避等待期间没有任何
// 请求上下文处于当前状态，等待结束后下一次尝试在调度器的某个 lane 上执行。
//
// 执行的终态：
//   - StateSucceeded: 决策不再重试且最后一次尝试成功
//   - StateAborted: 决策不再重试且最后一次尝试失败，或执行被取消
//   - StateExhausted: 退避返回 Stop 或达到最大尝试次数，返回最后一次尝试自身的结果
//
// 支持的退避策略：
//   - WithoutDelay, Fixed, Linear: 无间隔、固定间隔、线性增长间隔
//   - Exponential, ExponentialMultiplier, Fibonacci: 增长并封顶的间隔
//   - Random: 区间内的随机间隔
//   - WithJitter, WithJitterRate, WithMaxAttempts: 装饰已有的退避策略
//
// ParseBackoff 可以从文本解析退避策略，例如 "exponential=10:1000,jitter=0.2,maxAttempts=5"。
package retry
