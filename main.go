// 命令行入口：
// - generate（默认）：加载名单 → 校验 → 审计 → 构建环 → 生成静态页面/OPML/JSON
// - audit：只做在线审计并打印报告
// - history：查看审计历史（需配置 DATABASE.dsn）
// - version：打印版本
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
