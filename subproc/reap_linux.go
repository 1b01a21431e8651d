package subproc

import (
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/pkg/util"
)

// cldKilled is the SIGCHLD si_code meaning the child was killed by a
// signal (CLD_KILLED), not exposed by golang.org/x/sys/unix.
const cldKilled = 2

// siginfoChld is the SIGCHLD view of siginfo_t on 64-bit Linux.
type siginfoChld struct {
	Signo  int32
	Errno  int32
	Code   int32
	_      int32
	Pid    int32
	UID    uint32
	Status int32
	_      int32
	Utime  int64
	Stime  int64
	_      [80]byte
}

// ReapProc is the non-blocking reap pass. It drains every exited child
// with waitid(WNOWAIT) - running the SIGSYS diagnostic while the zombie
// still exists - then reaps and classifies each one, and finally kills
// children over their wallclock budget. Returns the exit code mapping
// of the last reaped child.
func (rt *Runtime) ReapProc() int {
	rv := 0
	for {
		var si siginfoChld
		// WNOWAIT leaves the zombie in place so /proc/<pid>/syscall is
		// still readable for the diagnostic
		_, _, errno := unix.Syscall6(unix.SYS_WAITID, unix.P_ALL, 0,
			uintptr(unsafe.Pointer(&si)), unix.WNOHANG|unix.WNOWAIT|unix.WEXITED, 0, 0)
		if errno != 0 {
			break
		}
		if si.Pid == 0 {
			break
		}
		if si.Code == cldKilled && si.Status == int32(unix.SIGSYS) {
			rt.seccompViolation(&si)
		}
		rv = rt.reapOne(int(si.Pid), false)
	}

	rt.enforceTimeLimit()
	return rv
}

// reapOne reaps a specific pid, records its usage, tears down its
// cgroup and removes its record. Returns the child's exit code mapping:
// the exit status on normal exit, 128+signo on signal death, 0 when the
// pid was not reapable.
func (rt *Runtime) reapOne(pid int, blocking bool) int {
	// retrieve the stored limits before waiting; the record outlives
	// the zombie but not the reap
	remoteTxt := "[unknown]"
	cpuRLCur, cpuRLMax := infRLimit, infRLimit
	if p, ok := rt.pids[pid]; ok {
		remoteTxt = p.remoteTxt
		cpuRLCur = p.cpuRLCur
		cpuRLMax = p.cpuRLMax
		klog.Infof("pid=%d Configured RLIMIT_CPU: cur=%d, max=%d", pid, cpuRLCur, cpuRLMax)
	} else {
		klog.Warningf("pid=%d not found in tracked process map during reap", pid)
	}

	var (
		ws unix.WaitStatus
		ru unix.Rusage
	)
	opts := unix.WNOHANG
	if blocking {
		opts = 0
	}
	wpid, err := unix.Wait4(pid, &ws, opts, &ru)
	for err == unix.EINTR {
		wpid, err = unix.Wait4(pid, &ws, opts, &ru)
	}
	if err != nil {
		// ECHILD means the pid was already reaped, expected sometimes
		// in the WNOHANG loop
		if err != unix.ECHILD {
			klog.Warningf("wait4(pid=%d, blocking=%v) failed: %v", pid, blocking, err)
		}
		return 0
	}
	if wpid != pid {
		return 0
	}

	userSec := float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6
	sysSec := float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
	totSec := userSec + sysSec
	klog.Infof("pid=%d CPU usage -> user: %.6fs, sys: %.6fs, total: %.6fs", pid, userSec, sysSec, totSec)

	// the zombie is gone; the per-child cgroup no longer counts it
	rt.Cgroup.FinishFromParent(pid)

	switch {
	case ws.Exited():
		klog.Infof("pid=%d (%s) exited with status: %d, (PIDs left: %d)",
			pid, remoteTxt, ws.ExitStatus(), rt.CountProc()-1)
		rt.RemoveProc(pid)
		return ws.ExitStatus()

	case ws.Signaled():
		sig := int(ws.Signal())
		switch {
		case sig == int(unix.SIGXCPU):
			klog.Infof("pid=%d (%s) killed: CPU soft limit exceeded (SIGXCPU), (PIDs left: %d)",
				pid, remoteTxt, rt.CountProc()-1)
		case sig == int(unix.SIGKILL) && cpuRLMax != infRLimit && totSec >= float64(cpuRLMax):
			klog.Infof("pid=%d (%s) killed: CPU hard limit exceeded (SIGKILL), used=%.3fs, hard_limit=%ds, (PIDs left: %d)",
				pid, remoteTxt, totSec, cpuRLMax, rt.CountProc()-1)
		case sig == int(unix.SIGKILL):
			klog.Infof("pid=%d (%s) killed by SIGKILL, (PIDs left: %d)", pid, remoteTxt, rt.CountProc()-1)
		default:
			klog.Infof("pid=%d (%s) terminated with signal: %s, (PIDs left: %d)",
				pid, remoteTxt, util.SigName(sig), rt.CountProc()-1)
		}
		rt.RemoveProc(pid)
		return exitCodeForSignal(sig)
	}
	return 0
}

// exitCodeForSignal maps signal death to the shell convention.
func exitCodeForSignal(sig int) int {
	return 128 + sig
}

// enforceTimeLimit kills every child over its wallclock budget. SIGCONT
// precedes SIGKILL: a stopped, namespaced process may otherwise ignore
// the kill.
func (rt *Runtime) enforceTimeLimit() {
	if rt.Conf.TimeLimit == 0 {
		return
	}
	now := time.Now()
	for pid, p := range rt.pids {
		diff := now.Sub(p.start)
		if diff < 0 {
			klog.Warningf("pid=%d start time is in the future, start time: %v, now: %v",
				pid, p.start, now)
			continue
		}
		if uint64(diff/time.Second) < rt.Conf.TimeLimit {
			continue
		}
		klog.Infof("pid=%d run time >= time limit (%d >= %d) (%s). Killing it",
			pid, diff/time.Second, rt.Conf.TimeLimit, p.remoteTxt)
		unix.Kill(pid, unix.SIGCONT)
		klog.V(1).Infof("Sent SIGCONT to pid=%d", pid)
		unix.Kill(pid, unix.SIGKILL)
		klog.V(1).Infof("Sent SIGKILL to pid=%d", pid)
	}
}

// KillAndReapAll tears the whole table down on shutdown: every child is
// signalled and reaped with a blocking wait; records of already-gone
// pids are simply dropped.
func (rt *Runtime) KillAndReapAll(sig syscall.Signal) {
	for len(rt.pids) > 0 {
		var pid int
		for p := range rt.pids {
			pid = p
			break
		}
		if unix.Kill(pid, sig) == nil {
			rt.reapOne(pid, true)
		}
		if _, ok := rt.pids[pid]; ok {
			rt.RemoveProc(pid)
		}
	}
}
