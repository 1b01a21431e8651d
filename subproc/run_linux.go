package subproc

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/contain"
	jnet "github.com/criyle/go-jail/net"
	"github.com/criyle/go-jail/pkg/util"
	"github.com/criyle/go-jail/sandbox"
	"github.com/criyle/go-jail/user"
)

// RunChild launches one jailed process for the given peer socket and
// stdio descriptors. In listen mode it clones a child, synchronises
// with it over the handshake pair and registers it in the process
// table, returning the child pid. In standalone mode the current
// process unshares and execs; RunChild only returns on failure then.
//
// A refused connection returns pid 0 with no error.
func (rt *Runtime) RunChild(netfd, fdIn, fdOut, fdErr int) (int, error) {
	if !jnet.LimitConns(rt.Conf, netfd, rt.activeAddrs()) {
		return 0, nil
	}
	flags := rt.Conf.CloneFlags()

	if rt.Conf.Mode == config.ModeExecve {
		klog.V(1).Infof("unshare(flags: %s)", cloneFlagsToStr(flags))
		return 0, rt.runStandalone(flags, fdIn, fdOut, fdErr)
	}

	if flags&unix.CLONE_VM != 0 {
		return -1, ErrCloneVM
	}
	if flags&unix.CLONE_NEWTIME != 0 {
		klog.Warningf("CLONE_NEWTIME requested; it requires clone3 and is otherwise only supported in standalone mode")
	}

	c, err := rt.prepareChild(fdIn, fdOut, fdErr)
	if err != nil {
		return -1, err
	}

	// the handshake pair: sv[0] is used by the child, sv[1] by the parent
	sv, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("subproc: socketpair: %w", err)
	}

	klog.V(1).Infof("Creating new process with clone flags:%s and exit_signal:SIGCHLD", cloneFlagsToStr(flags))

	r1, err1 := forkAndRunChild(c, flags, sv)
	afterFork()
	syscall.ForkLock.Unlock()

	unix.Close(sv[0])
	if err1 != 0 {
		unix.Close(sv[1])
		if err1 == syscall.ENOSYS && flags&unix.CLONE_NEWTIME != 0 {
			return -1, ErrCloneNewTime
		}
		klog.Warningf("clone(flags=%s) failed: %v", cloneFlagsToStr(flags), err1)
		return -1, fmt.Errorf("subproc: clone(flags=%s): %w", cloneFlagsToStr(flags), err1)
	}
	pid := int(r1)

	rt.AddProc(pid, netfd)

	if !rt.initParent(pid, sv[1]) {
		// closing the socket makes the child see EOF and abort
		unix.Close(sv[1])
		return -1, fmt.Errorf("subproc: parent initialization failed for pid=%d", pid)
	}

	var buf [1]byte
	if n, _ := util.ReadFromFd(sv[1], buf[:]); n == 1 && buf[0] == handshakeErr {
		klog.Warningf("Received error message from the child process before it has been executed")
		unix.Close(sv[1])
		return -1, fmt.Errorf("subproc: child setup failed for pid=%d", pid)
	}
	unix.Close(sv[1])
	return pid, nil
}

// prepareChild compiles everything the cloned child will need: string
// vectors, containment parameters and the seccomp program. All of it
// must exist before clone since the child cannot allocate.
func (rt *Runtime) prepareChild(fdIn, fdOut, fdErr int) (*childParams, error) {
	conf := rt.Conf

	argv, err := syscall.SlicePtrFromStrings(conf.Argv)
	if err != nil {
		return nil, fmt.Errorf("subproc: prepare argv: %w", err)
	}
	env, err := syscall.SlicePtrFromStrings(rt.childEnv())
	if err != nil {
		return nil, fmt.Errorf("subproc: prepare env: %w", err)
	}

	var execPath *byte
	if !conf.UseExecveat {
		if execPath, err = syscall.BytePtrFromString(conf.ExecFile); err != nil {
			return nil, fmt.Errorf("subproc: prepare exec path: %w", err)
		}
	}

	cp, err := contain.Prepare(conf)
	if err != nil {
		return nil, err
	}
	fprog, err := sandbox.PrepareFilter(conf)
	if err != nil {
		return nil, err
	}

	c := &childParams{
		files:       [3]int{fdIn, fdOut, fdErr},
		argv:        argv,
		env:         env,
		execPath:    execPath,
		mounts:      cp.Mounts,
		pivotRoot:   cp.PivotRoot,
		hostname:    cp.Hostname,
		workDir:     cp.WorkDir,
		rlimits:     cp.RLimits,
		seccomp:     fprog,
		newns:       conf.CloneNewns,
		hostnameLen: len(conf.Hostname),
	}
	if conf.UseExecveat {
		c.execFd = conf.ExecFd
	}
	return c, nil
}

// childEnv resolves the environment vector: the host environment seeds
// it only with keep_env, then the configured pairs are appended.
func (rt *Runtime) childEnv() []string {
	if !rt.Conf.KeepEnv {
		return rt.Conf.Envs
	}
	return append(os.Environ(), rt.Conf.Envs...)
}

// initParent finishes the child's namespaces from the parent side and
// releases the child through the handshake. Network and user failures
// make the child abort via EOF; a cgroup failure is fatal to the whole
// supervisor since a child running outside its limits would violate the
// policy contract.
func (rt *Runtime) initParent(pid, pipefd int) bool {
	if err := jnet.InitNsFromParent(rt.Conf, pid); err != nil {
		klog.Errorf("Couldn't initialize net namespace for pid=%d: %v", pid, err)
		return false
	}
	if err := rt.Cgroup.InitFromParent(pid); err != nil {
		// exits with status 0xff
		klog.Fatalf("Couldn't initialize cgroup for pid=%d: %v", pid, err)
	}
	if err := user.InitNsFromParent(rt.Conf, pid); err != nil {
		klog.Errorf("Couldn't initialize user namespace for pid=%d: %v", pid, err)
		return false
	}
	if err := util.WriteToFd(pipefd, []byte{handshakeDone}); err != nil {
		klog.Errorf("Couldn't signal the new process via the handshake socket: %v", err)
		return false
	}
	return true
}
