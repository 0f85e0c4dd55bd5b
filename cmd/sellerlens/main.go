package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/sellerlens/internal/app"
)

func main() {
	// ローカル開発用。.envが無ければ環境変数のみを使う
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sellerlens: %v\n", err)
		os.Exit(1)
	}
}
