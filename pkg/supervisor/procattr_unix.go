//go:build unix && !linux

package supervisor

import "syscall"

// sysProcAttr puts the worker in its own process group.
// Pdeathsig is not available outside Linux.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
