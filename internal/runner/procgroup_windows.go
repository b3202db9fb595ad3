//go:build windows

package runner

import (
	"os/exec"
	"strconv"
)

func defaultShell() []string {
	return []string{"cmd.exe", "/c"}
}

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup uses taskkill /T to take down the child's tree
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	kill := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(cmd.Process.Pid))
	if err := kill.Run(); err != nil {
		_ = cmd.Process.Kill()
	}
}
