package routine_test

import (
	"errors"
	"fmt"

	"github.com/saltfishpr/resilience/routine"
)

// ExampleRunSafe 演示 RunSafe 的用法 - 同步执行函数并自动恢复 panic
func ExampleRunSafe() {
	routine.RunSafe(func() {
		fmt.Println("执行任务...")
		panic("出错了!")
	})

	fmt.Println("程序继续执行")

	// Output:
	// 执行任务...
	// 程序继续执行
}

// ExampleRunSafe_withCleanup 演示 RunSafe 带 cleanup 函数的用法
func ExampleRunSafe_withCleanup() {
	routine.RunSafe(func() {
		panic("发生 panic")
	}, func(r any) {
		fmt.Printf("清理资源: %v\n", r)
	})

	// Output:
	// 清理资源: 发生 panic
}

// ExampleGoSafe 演示 GoSafe 的用法 - 异步执行 goroutine 并自动恢复 panic
func ExampleGoSafe() {
	done := make(chan struct{})

	routine.GoSafe(func() {
		defer close(done)
		fmt.Println("goroutine 执行任务")
		panic("goroutine 出错了")
	})

	<-done
	fmt.Println("主程序继续执行")

	// Output:
	// goroutine 执行任务
	// 主程序继续执行
}

// ExampleTry 演示 Try 将 panic 转换为错误
func ExampleTry() {
	err := routine.Try(func() {
		panic("回调失败")
	})
	fmt.Println(err)

	var recovered *routine.RecoveredError
	fmt.Println(errors.As(err, &recovered))

	// Output:
	// panic: 回调失败
	// true
}

// ExampleTry_errorValue 演示 panic 值为 error 时可以通过 errors.Is 匹配
func ExampleTry_errorValue() {
	sentinel := errors.New("boom")
	err := routine.Try(func() {
		panic(sentinel)
	})
	fmt.Println(errors.Is(err, sentinel))

	// Output:
	// true
}
