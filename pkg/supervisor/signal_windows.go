package supervisor

import "os"

// terminate kills the worker: Windows has no SIGTERM delivery to child processes.
func terminate(p *os.Process) error {
	return p.Kill()
}
