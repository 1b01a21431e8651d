package subproc

import (
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	jnet "github.com/criyle/go-jail/net"
)

// infRLimit mirrors RLIM64_INFINITY.
const infRLimit = ^uint64(0)

// procInfo is the per-child record, keyed by pid in Runtime.pids. It
// exists exactly while the pid is cloned but not yet reaped and
// removed.
type procInfo struct {
	start      time.Time
	remoteTxt  string
	remoteAddr unix.Sockaddr

	// sysFd is an open handle to /proc/<pid>/syscall, acquired at
	// registration so it stays readable for the SIGSYS diagnostic even
	// once the process is a zombie. -1 when unavailable. Owned by the
	// supervisor and closed exactly once, at removal.
	sysFd int

	// CPU rlimit configured for this child at registration, so that the
	// post-mortem SIGKILL classification does not depend on later
	// config state.
	cpuRLCur uint64
	cpuRLMax uint64
}

// AddProc inserts the record for a freshly cloned pid. Registering the
// same pid twice is a logic bug and fatal.
func (rt *Runtime) AddProc(pid int, netfd int) {
	if _, ok := rt.pids[pid]; ok {
		klog.Fatalf("pid=%d already exists in the process table", pid)
	}
	p := &procInfo{
		start:    time.Now(),
		sysFd:    -1,
		cpuRLCur: infRLimit,
		cpuRLMax: infRLimit,
	}
	p.remoteTxt, p.remoteAddr = jnet.ConnToText(netfd, true)

	fd, err := openRetry("/proc/" + strconv.Itoa(pid) + "/syscall")
	if err != nil {
		klog.V(1).Infof("pid=%d: could not open /proc/%d/syscall: %v", pid, pid, err)
	} else {
		p.sysFd = fd
	}

	if !rt.Conf.DisableRL && rt.Conf.RLCPU > 0 {
		p.cpuRLCur = rt.Conf.RLCPU
		p.cpuRLMax = rt.Conf.RLCPU
	}

	rt.pids[pid] = p
	klog.V(1).Infof("Added pid=%d with start time %v to the queue for IP: %q",
		pid, p.start.Format(time.RFC3339), p.remoteTxt)
}

func openRetry(path string) (int, error) {
	for {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err == unix.EINTR {
			continue
		}
		return fd, err
	}
}

// RemoveProc drops the record and releases its syscall fd.
func (rt *Runtime) RemoveProc(pid int) {
	p, ok := rt.pids[pid]
	if !ok {
		klog.Warningf("pid=%d doesn't exist?", pid)
		return
	}
	klog.V(1).Infof("Removed pid=%d from the queue (IP:%q, start time:%v)",
		pid, p.remoteTxt, p.start.Format(time.RFC3339))
	if p.sysFd >= 0 {
		unix.Close(p.sysFd)
		p.sysFd = -1
	}
	delete(rt.pids, pid)
}

// CountProc returns the number of live children.
func (rt *Runtime) CountProc() int {
	return len(rt.pids)
}

// DisplayProc logs every live child with its run time and time left.
func (rt *Runtime) DisplayProc() {
	klog.Infof("Total number of spawned namespaces: %d", rt.CountProc())
	now := time.Now()
	for pid, p := range rt.pids {
		diff := now.Sub(p.start) / time.Second
		left := "unlimited"
		if rt.Conf.TimeLimit > 0 {
			left = strconv.FormatInt(int64(rt.Conf.TimeLimit)-int64(diff), 10)
		}
		klog.Infof("pid=%d, Remote host: %s, Run time: %d sec. (time left: %s s.)",
			pid, p.remoteTxt, diff, left)
	}
}

// activeAddrs lists the remote addresses of live children for
// connection admission.
func (rt *Runtime) activeAddrs() []unix.Sockaddr {
	ret := make([]unix.Sockaddr, 0, len(rt.pids))
	for _, p := range rt.pids {
		if p.remoteAddr != nil {
			ret = append(ret, p.remoteAddr)
		}
	}
	return ret
}
