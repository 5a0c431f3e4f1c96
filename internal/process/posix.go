package process

import (
	"os/exec"
	"syscall"
)

// setSetpgid puts a spawned task command in its own process group so
// Signal can target the whole group (a task's command frequently forks
// its own children -- a package-manager script wrapping a real compiler,
// for instance -- and SIGINT on just the leader would leave them behind).
func setSetpgid(cmd *exec.Cmd, value bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: value}
}

func processNotFoundErr(err error) bool {
	// ESRCH == no such process, ie. already exited
	return err == syscall.ESRCH
}
