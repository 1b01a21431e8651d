package subproc

import (
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/pkg/util"
)

const sysReadSize = 4095

// syscallState is the parsed content of /proc/<pid>/syscall.
type syscallState struct {
	// full form: "<nr> <a1>..<a6> <sp> <pc>" while blocked in a syscall
	nr   int64
	args [6]uint64
	// short form: "<status> <sp> <pc>" for non-running tasks
	sp, pc uint64
	// number of fields recognized: 9, 3 or 0
	form int
}

// parseSyscallState parses the two formats of /proc/<pid>/syscall;
// anything else yields form 0.
func parseSyscallState(s string) syscallState {
	var st syscallState
	f := strings.Fields(s)
	switch len(f) {
	case 9:
		nr, err := strconv.ParseInt(f[0], 10, 64)
		if err != nil {
			return st
		}
		var vals [8]uint64
		for i := 1; i < 9; i++ {
			v, err := strconv.ParseUint(f[i], 0, 64)
			if err != nil {
				return st
			}
			vals[i-1] = v
		}
		st.nr = nr
		copy(st.args[:], vals[:6])
		st.sp, st.pc = vals[6], vals[7]
		st.form = 9
	case 3:
		sp, err := strconv.ParseUint(f[1], 0, 64)
		if err != nil {
			return st
		}
		pc, err := strconv.ParseUint(f[2], 0, 64)
		if err != nil {
			return st
		}
		st.sp, st.pc = sp, pc
		st.form = 3
	}
	return st
}

// seccompViolation logs what the child was doing when the kernel killed
// it with SIGSYS. It must run before the final reap: waitid(WNOWAIT)
// leaves the zombie in place and reaping it destroys
// /proc/<pid>/syscall.
func (rt *Runtime) seccompViolation(si *siginfoChld) {
	pid := int(si.Pid)
	klog.Warningf("pid=%d committed a syscall/seccomp violation and exited with SIGSYS", pid)

	p, ok := rt.pids[pid]
	if !ok {
		logSiginfo(si)
		klog.Errorf("Couldn't find pid=%d in the process table", pid)
		return
	}
	if p.sysFd < 0 {
		logSiginfo(si)
		return
	}

	buf := make([]byte, sysReadSize+1)
	n, err := util.ReadFromFd(p.sysFd, buf[:sysReadSize])
	if err != nil || n < 1 {
		logSiginfo(si)
		return
	}

	st := parseSyscallState(string(buf[:n]))
	switch st.form {
	case 9:
		klog.Warningf("pid=%d, Syscall number:%d, Arguments:%#x, %#x, %#x, %#x, %#x, %#x, SP:%#x, PC:%#x, si_status:%d",
			pid, st.nr, st.args[0], st.args[1], st.args[2], st.args[3], st.args[4], st.args[5],
			st.sp, st.pc, si.Status)
	case 3:
		klog.Warningf("pid=%d SiStatus:%d SiUid:%d SiUtime:%d SiStime:%d SP:%#x, PC:%#x (If "+
			"SiStatus==31 (SIGSYS), then see 'dmesg' or 'journalctl -ek' for possible "+
			"auditd report with more data)",
			pid, si.Status, si.UID, si.Utime, si.Stime, st.sp, st.pc)
	default:
		logSiginfo(si)
	}
}

func logSiginfo(si *siginfoChld) {
	klog.Warningf("pid=%d SiStatus:%d SiUid:%d SiUtime:%d SiStime:%d (If "+
		"SiStatus==31 (SIGSYS), then see 'dmesg' or 'journalctl -ek' for possible "+
		"auditd report with more data)",
		si.Pid, si.Status, si.UID, si.Utime, si.Stime)
}
