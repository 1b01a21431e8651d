package subproc

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/pkg/cgroup"
)

// testRuntime builds a supervisor with no namespaces and no cgroup
// controllers, runnable without privileges.
func testRuntime(t *testing.T, execFile string, argv ...string) *Runtime {
	t.Helper()
	if _, err := os.Stat(execFile); err != nil {
		t.Skipf("%s not available", execFile)
	}
	conf := config.New()
	conf.ExecFile = execFile
	conf.Argv = argv
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	return NewRuntime(conf, cgroup.New(conf.CgroupConfig(), true))
}

func devNullFd(t *testing.T) int {
	t.Helper()
	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return int(f.Fd())
}

// reapUntilEmpty drives the reap pass the way the event loop would,
// returning the last exit code mapping.
func reapUntilEmpty(t *testing.T, rt *Runtime, timeout time.Duration) int {
	t.Helper()
	deadline := time.Now().Add(timeout)
	rv := 0
	for rt.CountProc() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("children not reaped after %v, %d left", timeout, rt.CountProc())
		}
		if v := rt.ReapProc(); rt.CountProc() == 0 {
			rv = v
		}
		time.Sleep(10 * time.Millisecond)
	}
	return rv
}

func TestRunChildNormalExit(t *testing.T) {
	rt := testRuntime(t, "/bin/echo", "echo", "ok")
	fd := devNullFd(t)

	pid, err := rt.RunChild(-1, fd, fd, fd)
	if err != nil {
		t.Fatal(err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}
	if rt.CountProc() != 1 {
		t.Fatalf("CountProc = %d, want 1", rt.CountProc())
	}
	if rv := reapUntilEmpty(t, rt, 5*time.Second); rv != 0 {
		t.Errorf("exit code = %d, want 0", rv)
	}
}

func TestRunChildSignalExit(t *testing.T) {
	rt := testRuntime(t, "/bin/sh", "sh", "-c", "kill -TERM $$")
	fd := devNullFd(t)

	pid, err := rt.RunChild(-1, fd, fd, fd)
	if err != nil {
		t.Fatal(err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}
	if rv := reapUntilEmpty(t, rt, 5*time.Second); rv != 128+int(unix.SIGTERM) {
		t.Errorf("exit code = %d, want %d", rv, 128+int(unix.SIGTERM))
	}
}

func TestRunChildExecFailure(t *testing.T) {
	rt := testRuntime(t, "/bin/echo", "missing")
	rt.Conf.ExecFile = "/nonexistent/missing-binary"
	fd := devNullFd(t)

	if _, err := rt.RunChild(-1, fd, fd, fd); err == nil {
		t.Fatal("expected error from failed exec")
	}
	// the failed child stays registered until the reap pass collects it
	reapUntilEmpty(t, rt, 5*time.Second)
}

func TestRunChildExecveatClosedFd(t *testing.T) {
	rt := testRuntime(t, "/bin/echo", "echo")
	rt.Conf.UseExecveat = true
	rt.Conf.ExecFd = 200 // not an open descriptor
	fd := devNullFd(t)

	if _, err := rt.RunChild(-1, fd, fd, fd); err == nil {
		t.Fatal("expected error for exec by closed fd")
	}
	reapUntilEmpty(t, rt, 5*time.Second)
}

func TestTimeLimitKill(t *testing.T) {
	rt := testRuntime(t, "/bin/sleep", "sleep", "60")
	rt.Conf.TimeLimit = 1
	fd := devNullFd(t)

	pid, err := rt.RunChild(-1, fd, fd, fd)
	if err != nil {
		t.Fatal(err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}
	if rv := reapUntilEmpty(t, rt, 10*time.Second); rv != 128+int(unix.SIGKILL) {
		t.Errorf("exit code = %d, want %d", rv, 128+int(unix.SIGKILL))
	}
}

func TestTimeLimitZeroNeverKills(t *testing.T) {
	rt := testRuntime(t, "/bin/sleep", "sleep", "2")
	fd := devNullFd(t)

	start := time.Now()
	pid, err := rt.RunChild(-1, fd, fd, fd)
	if err != nil {
		t.Fatal(err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d", pid)
	}
	if rv := reapUntilEmpty(t, rt, 10*time.Second); rv != 0 {
		t.Errorf("exit code = %d, want 0", rv)
	}
	// the child ran its full sleep; nothing killed it for time
	if elapsed := time.Since(start); elapsed < 1500*time.Millisecond {
		t.Errorf("child finished after %v, expected it to run ~2s", elapsed)
	}
}

func TestKillAndReapAll(t *testing.T) {
	rt := testRuntime(t, "/bin/sleep", "sleep", "60")
	fd := devNullFd(t)

	for i := 0; i < 3; i++ {
		pid, err := rt.RunChild(-1, fd, fd, fd)
		if err != nil {
			t.Fatal(err)
		}
		if pid <= 0 {
			t.Fatalf("pid = %d", pid)
		}
	}
	if rt.CountProc() != 3 {
		t.Fatalf("CountProc = %d, want 3", rt.CountProc())
	}
	rt.KillAndReapAll(unix.SIGKILL)
	if rt.CountProc() != 0 {
		t.Errorf("CountProc = %d after KillAndReapAll", rt.CountProc())
	}
}

func TestAddRemoveProc(t *testing.T) {
	// AddProc on a duplicate pid is fatal by design; only check the
	// bookkeeping of distinct pids here.
	rt := testRuntime(t, "/bin/echo", "echo")
	rt.AddProc(999999, -1)
	if rt.CountProc() != 1 {
		t.Fatalf("CountProc = %d", rt.CountProc())
	}
	rt.RemoveProc(999999)
	if rt.CountProc() != 0 {
		t.Fatalf("CountProc = %d after remove", rt.CountProc())
	}
	// removing twice only logs
	rt.RemoveProc(999999)
}

func TestCPURLimitStoredAtRegistration(t *testing.T) {
	rt := testRuntime(t, "/bin/echo", "echo")
	rt.Conf.RLCPU = 7
	rt.AddProc(999998, -1)
	defer rt.RemoveProc(999998)

	// later config mutations must not change the stored limit
	rt.Conf.RLCPU = 99
	p := rt.pids[999998]
	if p.cpuRLCur != 7 || p.cpuRLMax != 7 {
		t.Errorf("stored cpu rlimit = %d/%d, want 7/7", p.cpuRLCur, p.cpuRLMax)
	}
}
