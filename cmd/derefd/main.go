package main

import (
	"os"

	"github.com/MrSnakeDoc/derefd/cmd/derefd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
