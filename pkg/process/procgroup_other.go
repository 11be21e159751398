//go:build !unix

package process

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) func() { return func() {} }
