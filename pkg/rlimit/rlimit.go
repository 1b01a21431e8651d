// Package rlimit prepares POSIX resource limits in the prlimit64 form
// applied inside the jailed child before exec.
package rlimit

import (
	"fmt"
	"strings"
	"syscall"
)

// RLIMIT_NPROC is not exposed by the standard syscall package on Linux
// (see golang.org/x/sys/unix.RLIMIT_NPROC), so it is defined here.
const rlimitNProc = 0x6

// RLimits holds the per-process limits configured for a jail. Zero
// means the limit is left untouched.
type RLimits struct {
	CPU          uint64 // seconds; both soft and hard are set to this
	FileSize     uint64 // bytes
	AddressSpace uint64 // bytes
	NoFile       uint64 // open file descriptors
	NProc        uint64 // processes
	Stack        uint64 // bytes
	DisableCore  bool   // force core size to 0
}

// RLimit is one resource limit in setrlimit form.
type RLimit struct {
	Res  int
	Rlim syscall.Rlimit
}

func rlim(cur, max uint64) syscall.Rlimit {
	return syscall.Rlimit{Cur: cur, Max: max}
}

// PrepareRLimit builds the prlimit64 sequence for the child. The CPU
// limit sets soft == hard so that exceeding it raises SIGXCPU and then
// SIGKILL at the same boundary.
func (r RLimits) PrepareRLimit() []RLimit {
	var ret []RLimit
	if r.CPU > 0 {
		ret = append(ret, RLimit{Res: syscall.RLIMIT_CPU, Rlim: rlim(r.CPU, r.CPU)})
	}
	if r.FileSize > 0 {
		ret = append(ret, RLimit{Res: syscall.RLIMIT_FSIZE, Rlim: rlim(r.FileSize, r.FileSize)})
	}
	if r.AddressSpace > 0 {
		ret = append(ret, RLimit{Res: syscall.RLIMIT_AS, Rlim: rlim(r.AddressSpace, r.AddressSpace)})
	}
	if r.NoFile > 0 {
		ret = append(ret, RLimit{Res: syscall.RLIMIT_NOFILE, Rlim: rlim(r.NoFile, r.NoFile)})
	}
	if r.NProc > 0 {
		ret = append(ret, RLimit{Res: rlimitNProc, Rlim: rlim(r.NProc, r.NProc)})
	}
	if r.Stack > 0 {
		ret = append(ret, RLimit{Res: syscall.RLIMIT_STACK, Rlim: rlim(r.Stack, r.Stack)})
	}
	if r.DisableCore {
		ret = append(ret, RLimit{Res: syscall.RLIMIT_CORE, Rlim: rlim(0, 0)})
	}
	return ret
}

func (r RLimit) String() string {
	t := ""
	switch r.Res {
	case syscall.RLIMIT_CPU:
		return fmt.Sprintf("CPU[%d s:%d s]", r.Rlim.Cur, r.Rlim.Max)
	case syscall.RLIMIT_FSIZE:
		t = "File"
	case syscall.RLIMIT_AS:
		t = "AddressSpace"
	case syscall.RLIMIT_NOFILE:
		t = "NoFile"
	case rlimitNProc:
		t = "NProc"
	case syscall.RLIMIT_STACK:
		t = "Stack"
	case syscall.RLIMIT_CORE:
		t = "Core"
	}
	return fmt.Sprintf("%s[%d:%d]", t, r.Rlim.Cur, r.Rlim.Max)
}

func (r RLimits) String() string {
	var sb strings.Builder
	sb.WriteString("RLimits[")
	for i, rl := range r.PrepareRLimit() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(rl.String())
	}
	sb.WriteString("]")
	return sb.String()
}
