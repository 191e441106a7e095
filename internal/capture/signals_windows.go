//go:build windows

package capture

import (
	"fmt"
	"os"
)

func suspendProcess(p *os.Process) error {
	return fmt.Errorf("pause not supported on windows")
}

func resumeProcess(p *os.Process) error {
	return nil
}

func interruptProcess(p *os.Process) error {
	return p.Kill()
}
