//go:build unix

package command

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group so a timeout kill
// reaches every descendant that inherited the output pipe. Killing only the
// direct child would leave e.g. a remote-transport helper holding the pipe
// open and the runner blocked well past its deadline.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessTree signals the child's whole process group
func killProcessTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}
