package subproc

import (
	"fmt"
	"os/signal"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/contain"
	jnet "github.com/criyle/go-jail/net"
	"github.com/criyle/go-jail/sandbox"
	"github.com/criyle/go-jail/user"
)

// runStandalone is the unshare-and-exec mode: no child is created, no
// handshake happens and no process table entry exists. The current
// process unshares the requested namespaces, contains itself and execs
// the target, keeping its own pid. It only returns on failure.
func (rt *Runtime) runStandalone(flags uint64, fdIn, fdOut, fdErr int) error {
	if flags&unix.CLONE_VM != 0 {
		return ErrCloneVM
	}
	if err := unix.Unshare(int(flags)); err != nil {
		return fmt.Errorf("subproc: unshare(%s): %w", cloneFlagsToStr(flags), err)
	}
	return rt.newProc(fdIn, fdOut, fdErr)
}

func (rt *Runtime) newProc(fdIn, fdOut, fdErr int) error {
	conf := rt.Conf

	if err := contain.SetupFD(fdIn, fdOut, fdErr); err != nil {
		return err
	}

	// restore default dispositions and an empty mask before exec
	signal.Reset()
	var emptySet unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_SETMASK, &emptySet, nil); err != nil {
		return fmt.Errorf("subproc: sigprocmask(SIG_SETMASK, empty): %w", err)
	}

	// without a parent, user and cgroup namespaces are initialized from
	// within
	pid := unix.Getpid()
	if err := user.InitNsFromParent(conf, pid); err != nil {
		return err
	}
	if err := rt.Cgroup.InitFromParent(pid); err != nil {
		return err
	}

	if err := contain.ContainProc(conf); err != nil {
		return err
	}
	if conf.IfaceLo {
		if err := jnet.SetupLo(); err != nil {
			klog.Warningf("Couldn't bring lo up: %v", err)
		}
	}

	envs := rt.childEnv()
	klog.Infof("Executing %q for '[standalone]'", conf.ExecFile)

	// must be the last step in the sequence
	if err := sandbox.ApplyPolicy(conf); err != nil {
		return fmt.Errorf("subproc: apply seccomp policy: %w", err)
	}

	if conf.UseExecveat {
		err := execveatFd(conf.ExecFd, conf.Argv, envs)
		return fmt.Errorf("subproc: execveat(fd=%d): %w", conf.ExecFd, err)
	}
	err := unix.Exec(conf.ExecFile, conf.Argv, envs)
	return fmt.Errorf("subproc: execve(%q): %w", conf.ExecFile, err)
}

// execveatFd execs the preopened fd with an empty path and
// AT_EMPTY_PATH. Only returns on failure.
func execveatFd(fd uintptr, argv, envv []string) error {
	argvp, err := syscall.SlicePtrFromStrings(argv)
	if err != nil {
		return err
	}
	envp, err := syscall.SlicePtrFromStrings(envv)
	if err != nil {
		return err
	}
	_, _, errno := syscall.Syscall6(unix.SYS_EXECVEAT, fd,
		uintptr(unsafe.Pointer(&empty[0])), uintptr(unsafe.Pointer(&argvp[0])),
		uintptr(unsafe.Pointer(&envp[0])), unix.AT_EMPTY_PATH, 0)
	return errno
}
