// Package routine 提供 panic 恢复工具，供调度器和流水线回调使用。
//
// 主要功能：
//   - Try: 同步执行函数，将 panic 转换为 *RecoveredError 返回
//   - RunSafe/GoSafe: 自动捕获 panic 的同步/异步函数执行
//   - Recovered: panic 值与调用栈
//
// 使用场景：
//   - 调度器的工作协程执行任务时，使用 RunSafe 避免单个任务导致协程退出
//   - 流水线执行用户回调时，使用 Try 把 panic 变成错误信号
package routine
