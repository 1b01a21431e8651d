package config

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestDefaults(t *testing.T) {
	t.Parallel()
	c := New()
	if c.CgroupMemSwapMax != -1 {
		t.Errorf("default swap max = %d, want -1", c.CgroupMemSwapMax)
	}
	if c.CgroupV2Mount != "/sys/fs/cgroup" {
		t.Errorf("default mount = %q", c.CgroupV2Mount)
	}
	if c.Mode != ModeListen {
		t.Errorf("default mode = %v", c.Mode)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	c := New()
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing exec_file")
	}
	c.ExecFile = "/bin/true"
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(c.Argv) != 1 || c.Argv[0] != "/bin/true" {
		t.Errorf("argv not defaulted: %v", c.Argv)
	}

	c2 := New()
	c2.ExecFile = "/bin/true"
	c2.UseExecveat = true
	if err := c2.Validate(); err == nil {
		t.Error("expected error for use_execveat without exec fd")
	}

	c3 := New()
	c3.ExecFile = "/bin/true"
	c3.CgroupMemMax = 64 << 20
	c3.CgroupMemMemswMax = 1 << 20
	if err := c3.Validate(); err == nil {
		t.Error("expected error for memsw below mem")
	}
}

func TestCloneFlags(t *testing.T) {
	t.Parallel()
	c := New()
	if c.CloneFlags() != 0 {
		t.Errorf("empty config produced flags %#x", c.CloneFlags())
	}
	c.CloneNewnet = true
	c.CloneNewpid = true
	c.CloneNewuser = true
	want := uint64(unix.CLONE_NEWNET | unix.CLONE_NEWPID | unix.CLONE_NEWUSER)
	if got := c.CloneFlags(); got != want {
		t.Errorf("CloneFlags = %#x, want %#x", got, want)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "jail.yaml")
	content := []byte(`
mode: execve
exec_file: /bin/echo
argv: [echo, hello]
clone_newpid: true
clone_newns: true
tlimit: 30
cgroup_mem_max: 67108864
cgroup_mem_memsw_max: 67108864
keep_env: false
envs: [LANG=C]
seccomp_default: kill
seccomp_allow: [read, write]
`)
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Mode != ModeExecve {
		t.Errorf("mode = %v", c.Mode)
	}
	if !c.CloneNewpid || !c.CloneNewns || c.CloneNewnet {
		t.Errorf("namespaces wrong: %+v", c)
	}
	if c.TimeLimit != 30 {
		t.Errorf("tlimit = %d", c.TimeLimit)
	}
	// derived swap of the combined limit may legitimately be zero
	if got := c.CgroupConfig().SwapMax(); got != 0 {
		t.Errorf("SwapMax = %d, want 0", got)
	}
	if len(c.SeccompAllow) != 2 || c.SeccompDefault != "kill" {
		t.Errorf("seccomp config wrong: %v %v", c.SeccompDefault, c.SeccompAllow)
	}
}

func TestLoadBadMode(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "jail.yaml")
	if err := os.WriteFile(p, []byte("mode: bogus\nexec_file: /bin/true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestRLimitsDisabled(t *testing.T) {
	t.Parallel()
	c := New()
	c.RLCPU = 5
	c.DisableRL = true
	if got := c.RLimits().PrepareRLimit(); len(got) != 0 {
		t.Errorf("disabled rlimits still prepared %d entries", len(got))
	}
}
