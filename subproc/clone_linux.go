package subproc

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Clone errors with no fallback defined.
var (
	// ErrCloneVM rejects address-space sharing with the supervisor.
	ErrCloneVM = errors.New("cannot clone with CLONE_VM")
	// ErrCloneNewTime is returned when a time namespace is requested
	// but clone3 is unavailable; the legacy clone syscall cannot create
	// one and silently dropping the namespace would weaken the policy.
	ErrCloneNewTime = errors.New("CLONE_NEWTIME requested but clone3 is not supported")
)

// cloneArgs is the clone3 argument block (struct clone_args).
type cloneArgs struct {
	flags      uint64 // flags bit mask
	pidFD      uint64 // where to store PID file descriptor (int *)
	childTID   uint64 // where to store child TID, in child's memory (pid_t *)
	parentTID  uint64 // where to store child TID, in parent's memory (pid_t *)
	exitSignal uint64 // signal to deliver to parent on child termination
	stack      uint64 // pointer to lowest byte of stack
	stackSize  uint64 // size of stack
	tls        uint64 // location of new TLS
	setTID     uint64 // pointer to a pid_t array (since Linux 5.5)
	setTIDSize uint64 // number of elements in set_tid (since Linux 5.5)
	cgroup     uint64 // fd for target cgroup of child (since Linux 5.7)
}

// cloneClearSighand resets all signal dispositions in the child
// (clone3 only, since Linux 5.5).
const cloneClearSighand = 0x100000000

var cloneFlagNames = []struct {
	flag uint64
	name string
}{
	{unix.CLONE_NEWTIME, "CLONE_NEWTIME"},
	{unix.CLONE_VM, "CLONE_VM"},
	{unix.CLONE_FS, "CLONE_FS"},
	{unix.CLONE_FILES, "CLONE_FILES"},
	{unix.CLONE_SIGHAND, "CLONE_SIGHAND"},
	{unix.CLONE_PIDFD, "CLONE_PIDFD"},
	{unix.CLONE_PTRACE, "CLONE_PTRACE"},
	{unix.CLONE_VFORK, "CLONE_VFORK"},
	{unix.CLONE_PARENT, "CLONE_PARENT"},
	{unix.CLONE_THREAD, "CLONE_THREAD"},
	{unix.CLONE_NEWNS, "CLONE_NEWNS"},
	{unix.CLONE_SYSVSEM, "CLONE_SYSVSEM"},
	{unix.CLONE_SETTLS, "CLONE_SETTLS"},
	{unix.CLONE_PARENT_SETTID, "CLONE_PARENT_SETTID"},
	{unix.CLONE_CHILD_CLEARTID, "CLONE_CHILD_CLEARTID"},
	{unix.CLONE_DETACHED, "CLONE_DETACHED"},
	{unix.CLONE_UNTRACED, "CLONE_UNTRACED"},
	{unix.CLONE_CHILD_SETTID, "CLONE_CHILD_SETTID"},
	{unix.CLONE_NEWCGROUP, "CLONE_NEWCGROUP"},
	{unix.CLONE_NEWUTS, "CLONE_NEWUTS"},
	{unix.CLONE_NEWIPC, "CLONE_NEWIPC"},
	{unix.CLONE_NEWUSER, "CLONE_NEWUSER"},
	{unix.CLONE_NEWPID, "CLONE_NEWPID"},
	{unix.CLONE_NEWNET, "CLONE_NEWNET"},
	{unix.CLONE_IO, "CLONE_IO"},
	{cloneClearSighand, "CLONE_CLEAR_SIGHAND"},
	{unix.CLONE_INTO_CGROUP, "CLONE_INTO_CGROUP"},
}

// cloneFlagsToStr renders a clone flag bitmask for logs.
func cloneFlagsToStr(flags uint64) string {
	var (
		sb    strings.Builder
		known uint64
	)
	for _, f := range cloneFlagNames {
		if flags&f.flag != 0 {
			if sb.Len() > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(f.name)
		}
		known |= f.flag
	}
	if rest := flags &^ known; rest != 0 {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "%#x", rest)
	}
	return sb.String()
}
