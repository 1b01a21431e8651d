package subproc

import (
	"syscall"
	"unsafe" // required for go:linkname.

	"golang.org/x/sys/unix"

	"github.com/criyle/go-jail/pkg/mount"
	"github.com/criyle/go-jail/pkg/rlimit"
)

//go:linkname beforeFork syscall.runtime_BeforeFork
func beforeFork()

//go:linkname afterFork syscall.runtime_AfterFork
func afterFork()

//go:linkname afterForkInChild syscall.runtime_AfterForkInChild
func afterForkInChild()

// static NUL-terminated strings used by the child after clone
var (
	none    = [...]byte{'n', 'o', 'n', 'e', 0}
	slash   = [...]byte{'/', 0}
	empty   = [...]byte{0}
	tmpfs   = [...]byte{'t', 'm', 'p', 'f', 's', 0}
	oldRoot = [...]byte{'o', 'l', 'd', '_', 'r', 'o', 'o', 't', 0}
)

const bindRo = unix.MS_BIND | unix.MS_RDONLY

// childParams is everything the cloned child needs, pre-compiled in the
// parent: after clone the child may not call into the Go runtime, so no
// string conversion or allocation can happen on its side.
type childParams struct {
	files [3]int // stdio sources for fds 0/1/2

	argv []*byte
	env  []*byte

	// exec by fd when execFd > 0, by path otherwise
	execFd   uintptr
	execPath *byte

	mounts      []mount.SyscallParams
	pivotRoot   *byte
	hostname    *byte
	hostnameLen int
	workDir     *byte
	rlimits     []rlimit.RLimit

	seccomp *syscall.SockFprog

	newns bool
}

// forkAndRunChild clones the child and runs its bootstrap: stdio,
// signal reset, handshake wait, containment, rlimits, seccomp, exec.
// In the parent it returns the child pid (or the clone errno); the
// child never returns - it execs or exits after writing the error byte.
//
// The caller must call afterFork and release syscall.ForkLock once this
// returns in the parent.
//
// Reference to src/syscall/exec_linux.go
//
//go:norace
func forkAndRunChild(c *childParams, flags uint64, p [2]int) (r1 uintptr, err1 syscall.Errno) {
	var (
		pipe     = p[0]
		ca       = cloneArgs{exitSignal: uint64(syscall.SIGCHLD)}
		act      [4]uintptr
		emptySet uint64
		one      [1]byte
		i        int
	)

	// Acquire the fork lock so that no other threads create new fds
	// that are not yet close-on-exec before we fork.
	syscall.ForkLock.Lock()

	// About to call fork.
	// No more allocation or calls of non-assembly functions.
	beforeFork()

	// Fast path: clone3 with CLONE_CLEAR_SIGHAND; kernels between 5.3
	// and 5.5 know clone3 but not CLONE_CLEAR_SIGHAND, so retry without
	// it on EINVAL. ENOSYS falls back to the legacy clone syscall,
	// which cannot create a time namespace.
	ca.flags = flags | cloneClearSighand
	r1, _, err1 = syscall.RawSyscall(unix.SYS_CLONE3, uintptr(unsafe.Pointer(&ca)), unsafe.Sizeof(ca), 0)
	if err1 == syscall.EINVAL {
		ca.flags = flags
		r1, _, err1 = syscall.RawSyscall(unix.SYS_CLONE3, uintptr(unsafe.Pointer(&ca)), unsafe.Sizeof(ca), 0)
	}
	if err1 == syscall.ENOSYS && flags&unix.CLONE_NEWTIME == 0 {
		r1, _, err1 = syscall.RawSyscall6(syscall.SYS_CLONE, uintptr(flags)|uintptr(syscall.SIGCHLD), 0, 0, 0, 0, 0)
	}
	if err1 != 0 || r1 != 0 {
		// in parent process, immediate return
		return
	}

	// In child process
	afterForkInChild()
	// Notice: cannot call any GO functions beyond this point

	// close the parent end of the handshake pair
	if _, _, err1 = syscall.RawSyscall(syscall.SYS_CLOSE, uintptr(p[1]), 0, 0); err1 != 0 {
		goto childerror
	}

	// install the stdio trio on fds 0/1/2
	for i = 0; i < 3; i++ {
		if c.files[i] == i {
			// dup3(i, i) would fail; just clear close-on-exec
			_, _, err1 = syscall.RawSyscall(syscall.SYS_FCNTL, uintptr(i), syscall.F_SETFD, 0)
		} else {
			_, _, err1 = syscall.RawSyscall(syscall.SYS_DUP3, uintptr(c.files[i]), uintptr(i), 0)
		}
		if err1 != 0 {
			goto childerror
		}
	}

	// Reset every catchable disposition to SIG_DFL. The clone3 fast
	// path already did this via CLONE_CLEAR_SIGHAND; the legacy path
	// has not, and the mask must be emptied either way.
	for i = 1; i <= 64; i++ {
		if i == int(syscall.SIGKILL) || i == int(syscall.SIGSTOP) {
			continue
		}
		syscall.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(i), uintptr(unsafe.Pointer(&act)), 0, 8, 0, 0)
	}
	if _, _, err1 = syscall.RawSyscall6(unix.SYS_RT_SIGPROCMASK, uintptr(unix.SIG_SETMASK),
		uintptr(unsafe.Pointer(&emptySet)), 0, 8, 0, 0); err1 != 0 {
		goto childerror
	}

	// Wait for the parent to finish user/net/cgroup setup. Anything but
	// the done byte - including EOF when the parent gave up - aborts.
	r1, _, err1 = syscall.RawSyscall(syscall.SYS_READ, uintptr(pipe), uintptr(unsafe.Pointer(&one[0])), 1)
	if err1 != 0 {
		goto childerror
	}
	if r1 != 1 || one[0] != handshakeDone {
		err1 = syscall.EPIPE
		goto childerror
	}

	// new session, detached from the supervisor's terminal
	syscall.RawSyscall(syscall.SYS_SETSID, 0, 0, 0)

	// If the mount namespace is unshared, mark root as private to avoid
	// propagating outside to the original namespace.
	if c.newns {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&none[0])),
			uintptr(unsafe.Pointer(&slash[0])), 0, syscall.MS_REC|syscall.MS_PRIVATE, 0, 0)
		if err1 != 0 {
			goto childerror
		}
	}

	// mount tmpfs & chdir to the new root before performing mounts
	if c.pivotRoot != nil {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&tmpfs[0])),
			uintptr(unsafe.Pointer(c.pivotRoot)), uintptr(unsafe.Pointer(&tmpfs[0])), 0,
			uintptr(unsafe.Pointer(&empty[0])), 0)
		if err1 != 0 {
			goto childerror
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(c.pivotRoot)), 0, 0)
		if err1 != 0 {
			goto childerror
		}
	}

	// performing mounts
	for _, m := range c.mounts {
		// mkdirs(target); files are created via mknod instead
		for j, prefix := range m.Prefixes {
			if j == len(m.Prefixes)-1 && m.MakeNod {
				_, _, err1 = syscall.RawSyscall(syscall.SYS_MKNODAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(prefix)), 0755)
				if err1 != 0 && err1 != syscall.EEXIST {
					goto childerror
				}
				break
			}
			_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(prefix)), 0755)
			if err1 != 0 && err1 != syscall.EEXIST {
				goto childerror
			}
		}
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(m.Source)),
			uintptr(unsafe.Pointer(m.Target)), uintptr(unsafe.Pointer(m.FsType)), uintptr(m.Flags),
			uintptr(unsafe.Pointer(m.Data)), 0)
		if err1 != 0 {
			goto childerror
		}
		// bind mounts do not respect the ro flag and need a remount
		if m.Flags&bindRo == bindRo {
			_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&empty[0])),
				uintptr(unsafe.Pointer(m.Target)), uintptr(unsafe.Pointer(m.FsType)),
				uintptr(m.Flags|syscall.MS_REMOUNT), uintptr(unsafe.Pointer(m.Data)), 0)
			if err1 != 0 {
				goto childerror
			}
		}
	}

	// pivot_root into the new root and drop the old one
	if c.pivotRoot != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_MKDIRAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(&oldRoot[0])), 0755)
		if err1 != 0 {
			goto childerror
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_PIVOT_ROOT, uintptr(unsafe.Pointer(c.pivotRoot)), uintptr(unsafe.Pointer(&oldRoot[0])), 0)
		if err1 != 0 {
			goto childerror
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_UMOUNT2, uintptr(unsafe.Pointer(&oldRoot[0])), syscall.MNT_DETACH, 0)
		if err1 != 0 {
			goto childerror
		}
		_, _, err1 = syscall.RawSyscall(syscall.SYS_UNLINKAT, uintptr(_AT_FDCWD), uintptr(unsafe.Pointer(&oldRoot[0])), uintptr(unix.AT_REMOVEDIR))
		if err1 != 0 {
			goto childerror
		}
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_MOUNT, uintptr(unsafe.Pointer(&tmpfs[0])),
			uintptr(unsafe.Pointer(&slash[0])), uintptr(unsafe.Pointer(&tmpfs[0])),
			uintptr(syscall.MS_BIND|syscall.MS_REMOUNT|syscall.MS_RDONLY|syscall.MS_NOATIME|syscall.MS_NOSUID),
			uintptr(unsafe.Pointer(&empty[0])), 0)
		if err1 != 0 {
			goto childerror
		}
	}

	if c.hostname != nil {
		syscall.RawSyscall(syscall.SYS_SETHOSTNAME,
			uintptr(unsafe.Pointer(c.hostname)), uintptr(c.hostnameLen), 0)
	}

	if c.workDir != nil {
		_, _, err1 = syscall.RawSyscall(syscall.SYS_CHDIR, uintptr(unsafe.Pointer(c.workDir)), 0, 0)
		if err1 != 0 {
			goto childerror
		}
	}

	for _, rlim := range c.rlimits {
		// prlimit64 instead of setrlimit to avoid 32-bit limitation (linux > 3.2)
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRLIMIT64, 0, uintptr(rlim.Res), uintptr(unsafe.Pointer(&rlim.Rlim)), 0, 0, 0)
		if err1 != 0 {
			goto childerror
		}
	}

	// Seccomp is the last step before exec: past this point most
	// syscalls are disallowed.
	if c.seccomp != nil {
		_, _, err1 = syscall.RawSyscall6(syscall.SYS_PRCTL, unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0, 0)
		if err1 != 0 {
			goto childerror
		}
		_, _, err1 = syscall.RawSyscall(unix.SYS_SECCOMP, seccompSetModeFilter, seccompFilterFlagTSync, uintptr(unsafe.Pointer(c.seccomp)))
		if err1 != 0 {
			goto childerror
		}
	}

	// time to exec
	if c.execFd > 0 {
		_, _, err1 = syscall.RawSyscall6(unix.SYS_EXECVEAT, c.execFd,
			uintptr(unsafe.Pointer(&empty[0])), uintptr(unsafe.Pointer(&c.argv[0])),
			uintptr(unsafe.Pointer(&c.env[0])), unix.AT_EMPTY_PATH, 0)
	} else {
		_, _, err1 = syscall.RawSyscall6(unix.SYS_EXECVEAT, uintptr(_AT_FDCWD),
			uintptr(unsafe.Pointer(c.execPath)), uintptr(unsafe.Pointer(&c.argv[0])),
			uintptr(unsafe.Pointer(&c.env[0])), 0, 0)
	}

childerror:
	// report setup failure, then exit; the supervisor sees the error
	// byte before any exec happened
	one[0] = handshakeErr
	syscall.RawSyscall(syscall.SYS_WRITE, uintptr(pipe), uintptr(unsafe.Pointer(&one[0])), 1)
	for {
		syscall.RawSyscall(syscall.SYS_EXIT, uintptr(err1), 0, 0)
	}
}
