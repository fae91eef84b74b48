package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ric-network/catalogdao/internal/cli"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: set GOMAXPROCS: %v\n", err)
	}
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
