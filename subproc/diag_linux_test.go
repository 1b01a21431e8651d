package subproc

import "testing"

func TestParseSyscallState(t *testing.T) {
	t.Parallel()
	// blocked-in-syscall form: nr, six args, sp, pc
	st := parseSyscallState("165 0x1 0x2 0x3 0x4 0x5 0x6 0x7ffe0000 0x401000\n")
	if st.form != 9 {
		t.Fatalf("form = %d, want 9", st.form)
	}
	if st.nr != 165 || st.args[0] != 1 || st.args[5] != 6 {
		t.Errorf("parsed %+v", st)
	}
	if st.sp != 0x7ffe0000 || st.pc != 0x401000 {
		t.Errorf("sp/pc = %#x/%#x", st.sp, st.pc)
	}

	// non-running task form: status, sp, pc
	st = parseSyscallState("-1 0x7ffe0000 0x401000\n")
	if st.form != 3 {
		t.Fatalf("form = %d, want 3", st.form)
	}
	if st.sp != 0x7ffe0000 || st.pc != 0x401000 {
		t.Errorf("sp/pc = %#x/%#x", st.sp, st.pc)
	}

	for _, s := range []string{"", "running", "1 2", "a b c d e f g h i"} {
		if st := parseSyscallState(s); st.form != 0 {
			t.Errorf("parseSyscallState(%q).form = %d, want 0", s, st.form)
		}
	}
}

func TestCloneFlagsToStr(t *testing.T) {
	t.Parallel()
	if got := cloneFlagsToStr(0x00020000 | 0x20000000); got != "CLONE_NEWNS|CLONE_NEWPID" {
		t.Errorf("cloneFlagsToStr = %q", got)
	}
	if got := cloneFlagsToStr(0); got != "" {
		t.Errorf("cloneFlagsToStr(0) = %q", got)
	}
	if got := cloneFlagsToStr(1 << 50); got != "0x4000000000000" {
		t.Errorf("unknown flag = %q", got)
	}
}

func TestExitCodeForSignal(t *testing.T) {
	t.Parallel()
	for _, sig := range []int{9, 15, 24, 31} {
		if got := exitCodeForSignal(sig); got != 128+sig {
			t.Errorf("exitCodeForSignal(%d) = %d", sig, got)
		}
	}
}
