package seccomp

import (
	"testing"

	libseccomp "github.com/elastic/go-seccomp-bpf"
)

func TestBuilderBuild(t *testing.T) {
	t.Parallel()
	b := Builder{
		Allow:   []string{"read", "write", "exit_group"},
		Default: libseccomp.ActionKillProcess,
	}
	filter, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(filter) == 0 {
		t.Fatal("empty filter")
	}
	prog := filter.SockFprog()
	if int(prog.Len) != len(filter) {
		t.Errorf("SockFprog.Len = %d, want %d", prog.Len, len(filter))
	}
	if prog.Filter == nil {
		t.Error("SockFprog.Filter is nil")
	}
}

func TestBuilderUnknownSyscall(t *testing.T) {
	t.Parallel()
	b := Builder{
		Allow:   []string{"definitely_not_a_syscall"},
		Default: libseccomp.ActionKillProcess,
	}
	if _, err := b.Build(); err == nil {
		t.Error("expected error for unknown syscall name")
	}
}
