package main

import (
	"os"

	"github.com/npezzotti/go-classroom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
