//go:build unix

package process

import (
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// killGrace is how long a cancelled process group gets between SIGTERM and SIGKILL
const killGrace = 10 * time.Second

// setProcessGroup starts cmd in its own process group and makes cancellation
// signal the whole group, so jobs started by the launcher stop with it.
// The returned func must be called once cmd has been waited for.
func setProcessGroup(cmd *exec.Cmd) func() {
	var mu sync.Mutex
	var escalate *time.Timer

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		pgid := -cmd.Process.Pid
		mu.Lock()
		escalate = time.AfterFunc(killGrace, func() {
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		})
		mu.Unlock()
		return syscall.Kill(pgid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace + time.Second

	return func() {
		mu.Lock()
		defer mu.Unlock()
		if escalate != nil {
			escalate.Stop()
		}
	}
}
