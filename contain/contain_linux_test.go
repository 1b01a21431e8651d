package contain

import (
	"testing"

	"github.com/criyle/go-jail/config"
)

func TestPrepareMinimal(t *testing.T) {
	t.Parallel()
	c := config.New()
	c.ExecFile = "/bin/true"
	p, err := Prepare(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Mounts) != 0 {
		t.Errorf("got %d mounts, want 0", len(p.Mounts))
	}
	if p.PivotRoot != nil {
		t.Error("pivot root set for empty config")
	}
	if p.Hostname != nil {
		t.Error("hostname set without uts namespace")
	}
	if p.WorkDir == nil {
		t.Error("workdir missing for default cwd")
	}
	// default rlimits pin core to zero
	if len(p.RLimits) != 1 {
		t.Errorf("got %d rlimits, want 1", len(p.RLimits))
	}
}

func TestPrepareMounts(t *testing.T) {
	t.Parallel()
	c := config.New()
	c.ExecFile = "/bin/true"
	c.CloneNewns = true
	c.CloneNewuts = true
	c.PivotRoot = "/tmp/jail-root"
	c.Mounts = []config.BindMount{{Source: "/usr", Target: "usr", ReadOnly: true}}
	c.Tmpfs = []string{"tmp"}
	c.MountProc = true

	p, err := Prepare(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Mounts) != 3 {
		t.Errorf("got %d mounts, want 3", len(p.Mounts))
	}
	if p.PivotRoot == nil || p.Hostname == nil {
		t.Error("pivot root / hostname not compiled")
	}
}

func TestPrepareSkipsMissingBind(t *testing.T) {
	t.Parallel()
	c := config.New()
	c.ExecFile = "/bin/true"
	c.Mounts = []config.BindMount{{Source: "/nonexistent/path", Target: "x"}}
	p, err := Prepare(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Mounts) != 0 {
		t.Errorf("missing bind source not skipped: %d mounts", len(p.Mounts))
	}
}
