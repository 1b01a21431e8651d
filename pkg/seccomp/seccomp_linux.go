// Package seccomp holds the compiled BPF seccomp filter in the raw form
// consumed by the seccomp(2) syscall.
package seccomp

import "syscall"

// Filter is the compiled seccomp-bpf program.
type Filter []syscall.SockFilter

// SockFprog converts the filter to the sock_fprog format expected by
// seccomp(SECCOMP_SET_MODE_FILTER).
func (f Filter) SockFprog() *syscall.SockFprog {
	b := []syscall.SockFilter(f)
	return &syscall.SockFprog{
		Len:    uint16(len(b)),
		Filter: &b[0],
	}
}
