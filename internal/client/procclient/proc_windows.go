//go:build windows

package procclient

import "os/exec"

// Stop terminates cmd's process immediately. Windows has no SIGTERM
// equivalent available through os/exec; Kill maps to TerminateProcess,
// so there is no separate graceful step to attempt first.
func Stop(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
