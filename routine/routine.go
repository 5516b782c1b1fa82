package routine

// Try 同步执行 fn，如果 fn 发生 panic，返回 *RecoveredError，否则返回 nil。
//
// 与 RunSafe 不同，panic 信息不会被丢弃，调用者可以把它当作普通错误处理。
//
// 示例：
//
//	if err := routine.Try(func() {
//	    callback(ctx)
//	}); err != nil {
//	    sink.Error(ctx, err)
//	}
func Try(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// skip NewRecovered, this closure and runtime.gopanic
			err = NewRecovered(3, r).AsError()
		}
	}()

	fn()
	return nil
}

// RunSafe 同步执行函数 fn，自动捕获并恢复 panic。
//
// 如果 fn 发生 panic，会依次调用 cleanup 函数（如果提供），panic 值会作为参数传递。
// panic 不会向上传播，调用者可以继续执行。
func RunSafe(fn func(), cleanup ...func(r any)) {
	defer Recover(cleanup...)

	fn()
}

// GoSafe 在新的 goroutine 中异步执行函数 fn，自动捕获并恢复 panic。
func GoSafe(fn func(), cleanup ...func(r any)) {
	go RunSafe(fn, cleanup...)
}
