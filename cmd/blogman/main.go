// Command blogman はブログのWebサーバー、バックグラウンドワーカー、マイグレーションを提供する。
//
// 使い方:
//
//	blogman [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/blogman/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
