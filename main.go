package main

import (
	"fmt"
	"os"

	"github.com/mandersson1024/intonation-toy-sub003/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
