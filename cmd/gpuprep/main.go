// Package main is the gpuprep command. It exits 1 when a command fails and
// 130 when a run was interrupted, as a shell does after SIGINT.
package main

import (
	"errors"
	"os"
)

const (
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(exitCode(Execute()))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInterrupted):
		return exitInterrupted
	default:
		return exitFailure
	}
}
