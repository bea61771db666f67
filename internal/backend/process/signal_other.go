//go:build !unix

package process

import (
	"os"
	"os/exec"
)

type groupSignal int

const (
	sigInterrupt groupSignal = iota
	sigTerminate
	sigKill
)

func setProcessGroup(*exec.Cmd) {}

// signalGroup kills proc. Platforms without process groups cannot deliver
// an interrupt to a child, so every signal is a kill.
func signalGroup(proc *os.Process, _ groupSignal) error {
	return proc.Kill()
}

func wasSignaled(*os.ProcessState) bool { return false }
