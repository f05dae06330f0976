package supervisor

import "syscall"

// sysProcAttr puts the worker in its own process group so a terminal interrupt
// reaches only the host, which then stops the worker itself. Pdeathsig makes the
// kernel send SIGTERM to the worker if the host dies first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
