// Package scheduler 在 lane 上执行任务。每个任务收到的 context.Context 都携带
// 其所在的 reqctx.Lane，任务内部的代码可以读取该 lane 上的当前请求上下文。
//
// 提供的调度器：
//   - NewPool/NewSingle: 固定数量的工作协程，每个协程拥有一个 lane，任务按 FIFO 顺序执行
//   - Go/Default: 每个任务一个新协程，使用短生命周期的 lane
//
// 已关闭的 Pool 拒绝新任务：Schedule 返回 ErrClosed，ScheduleAfter 通过 rejected 回调报告。
// 调用方必须处理拒绝，否则等待该任务的执行会永远无法结束。
package scheduler
