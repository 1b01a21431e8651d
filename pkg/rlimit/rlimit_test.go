package rlimit

import (
	"syscall"
	"testing"
)

func TestPrepareRLimit(t *testing.T) {
	t.Parallel()
	r := RLimits{
		CPU:         2,
		FileSize:    1 << 20,
		DisableCore: true,
	}
	prepared := r.PrepareRLimit()
	if len(prepared) != 3 {
		t.Fatalf("got %d rlimits, want 3", len(prepared))
	}
	if prepared[0].Res != syscall.RLIMIT_CPU {
		t.Errorf("first resource = %d, want RLIMIT_CPU", prepared[0].Res)
	}
	// soft and hard CPU limits are pinned together
	if prepared[0].Rlim.Cur != 2 || prepared[0].Rlim.Max != 2 {
		t.Errorf("cpu rlim = %+v, want cur=max=2", prepared[0].Rlim)
	}
	last := prepared[len(prepared)-1]
	if last.Res != syscall.RLIMIT_CORE || last.Rlim.Max != 0 {
		t.Errorf("core rlim = %+v, want 0", last)
	}
}

func TestPrepareRLimitEmpty(t *testing.T) {
	t.Parallel()
	r := RLimits{}
	if got := r.PrepareRLimit(); len(got) != 0 {
		t.Errorf("empty RLimits prepared %d entries", len(got))
	}
}

func TestRLimitString(t *testing.T) {
	t.Parallel()
	r := RLimits{CPU: 1}
	if s := r.String(); s != "RLimits[CPU[1 s:1 s]]" {
		t.Errorf("String = %q", s)
	}
}
