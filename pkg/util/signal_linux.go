package util

import (
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// SigName formats a signal number the way the kernel names it, e.g.
// "SIGKILL(9)". Unknown numbers fall back to "SIG33" style.
func SigName(sig int) string {
	if name := unix.SignalName(syscall.Signal(sig)); name != "" {
		return name + "(" + strconv.Itoa(sig) + ")"
	}
	return "SIG" + strconv.Itoa(sig)
}
