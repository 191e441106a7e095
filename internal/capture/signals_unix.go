//go:build !windows

package capture

import (
	"os"
	"syscall"
)

func suspendProcess(p *os.Process) error {
	return p.Signal(syscall.SIGSTOP)
}

func resumeProcess(p *os.Process) error {
	return p.Signal(syscall.SIGCONT)
}

func interruptProcess(p *os.Process) error {
	return p.Signal(os.Interrupt)
}
