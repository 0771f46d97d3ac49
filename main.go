package main

import (
	"fmt"
	"os"

	"github.com/in-the-loop-labs/pair-review-sub008/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
