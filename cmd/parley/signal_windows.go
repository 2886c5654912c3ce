//go:build windows

package main

import (
	"os"
)

// terminationSignals lists the signals that end a long-running command.
// Windows only delivers os.Interrupt (Ctrl+C).
var terminationSignals = []os.Signal{os.Interrupt}
