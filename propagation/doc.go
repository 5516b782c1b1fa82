// Package propagation 让 flow 流水线的回调无论在哪个 lane 上执行，都能看到请求上下文。
//
// 支持两种模式：
//   - 显式携带 ContextWrite(m, rc): 组装流水线时把 rc 写入订阅的元数据
//   - 环境捕获 ContextCapture(m): 订阅时读取订阅所在 lane 上的当前请求上下文
//
// 两种模式下，每个回调（subscribe、request、next、error、complete）执行期间，
// 请求上下文都是其所在 lane 的当前上下文；回调返回或 panic 后恢复 lane 原来的上下文。
//
// 取消钩子（flow 的 DoOnCancel）不在覆盖范围内：取消不经过拦截器链生效。
//
// Wrap 和 Go 把调用方 lane 上的当前请求上下文带到稍后在其他 lane 上执行的普通函数中。
package propagation
