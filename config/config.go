// Package config defines the isolation policy of a jail: namespaces,
// resource limits, filesystem view, user mappings, seccomp policy and
// the supervisor mode. A config is immutable for the lifetime of a run.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/criyle/go-jail/pkg/cgroup"
	"github.com/criyle/go-jail/pkg/rlimit"
)

// Mode selects how the supervisor launches jailed processes.
type Mode int

const (
	// ModeListen clones one jailed child per accepted connection.
	ModeListen Mode = iota
	// ModeExecve unshares the current process and execs in place; no
	// child is created and no handshake happens.
	ModeExecve
)

func (m Mode) String() string {
	switch m {
	case ModeListen:
		return "listen"
	case ModeExecve:
		return "execve"
	default:
		return "invalid"
	}
}

// UnmarshalYAML accepts the textual mode names.
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	switch s {
	case "listen":
		*m = ModeListen
	case "execve", "standalone":
		*m = ModeExecve
	default:
		return fmt.Errorf("config: unknown mode %q", s)
	}
	return nil
}

// IDMap is one uid_map / gid_map line.
type IDMap struct {
	Inside  uint32 `yaml:"inside"`
	Outside uint32 `yaml:"outside"`
	Count   uint32 `yaml:"count"`
}

// BindMount binds a host path into the jail filesystem view.
type BindMount struct {
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	ReadOnly bool   `yaml:"read_only"`
}

// Jail is the isolation configuration consumed by the supervisor.
type Jail struct {
	Mode Mode `yaml:"mode"`

	// namespaces to create
	CloneNewnet    bool `yaml:"clone_newnet"`
	CloneNewuser   bool `yaml:"clone_newuser"`
	CloneNewns     bool `yaml:"clone_newns"`
	CloneNewpid    bool `yaml:"clone_newpid"`
	CloneNewipc    bool `yaml:"clone_newipc"`
	CloneNewuts    bool `yaml:"clone_newuts"`
	CloneNewcgroup bool `yaml:"clone_newcgroup"`
	CloneNewtime   bool `yaml:"clone_newtime"`

	// program to execute
	ExecFile    string   `yaml:"exec_file"`
	Argv        []string `yaml:"argv"`
	Envs        []string `yaml:"envs"`
	KeepEnv     bool     `yaml:"keep_env"`
	UseExecveat bool     `yaml:"use_execveat"`
	ExecMemfd   bool     `yaml:"exec_memfd"`
	// ExecFd is the preopened executable fd when exec-by-fd is used;
	// populated at startup, not from the config file.
	ExecFd uintptr `yaml:"-"`
	// ExecHandle keeps the file backing ExecFd alive for the
	// supervisor's lifetime; without an owner the finalizer would close
	// the fd and a later connection socket could reuse its number.
	ExecHandle *os.File `yaml:"-"`

	// TimeLimit is the wallclock budget in seconds; 0 is unlimited.
	TimeLimit uint64 `yaml:"tlimit"`

	// rlimits
	DisableRL bool   `yaml:"disable_rl"`
	RLCPU     uint64 `yaml:"rl_cpu"`
	RLAS      uint64 `yaml:"rl_as"`
	RLCore    uint64 `yaml:"rl_core"`
	RLFsize   uint64 `yaml:"rl_fsize"`
	RLNofile  uint64 `yaml:"rl_nofile"`
	RLNproc   uint64 `yaml:"rl_nproc"`
	RLStack   uint64 `yaml:"rl_stack"`

	// cgroup limits
	CgroupMemMax      uint64 `yaml:"cgroup_mem_max"`
	CgroupMemSwapMax  int64  `yaml:"cgroup_mem_swap_max"`
	CgroupMemMemswMax uint64 `yaml:"cgroup_mem_memsw_max"`
	CgroupPidsMax     uint64 `yaml:"cgroup_pids_max"`
	CgroupCPUMsPerSec uint64 `yaml:"cgroup_cpu_ms_per_sec"`
	CgroupV2Mount     string `yaml:"cgroupv2_mount"`
	CgroupMemMount    string `yaml:"cgroup_mem_mount"`
	CgroupPidsMount   string `yaml:"cgroup_pids_mount"`
	CgroupCPUMount    string `yaml:"cgroup_cpu_mount"`
	// UseCgroupV2 is derived by detection at startup.
	UseCgroupV2 bool `yaml:"-"`

	// filesystem view
	Hostname  string      `yaml:"hostname"`
	Cwd       string      `yaml:"cwd"`
	PivotRoot string      `yaml:"pivot_root"`
	Mounts    []BindMount `yaml:"mounts"`
	Tmpfs     []string    `yaml:"tmpfs"`
	MountProc bool        `yaml:"mount_proc"`

	// user namespace mappings
	UIDMappings     []IDMap `yaml:"uid_mappings"`
	GIDMappings     []IDMap `yaml:"gid_mappings"`
	EnableSetgroups bool    `yaml:"enable_setgroups"`

	// networking
	Iface         string `yaml:"iface"`
	IfaceLo       bool   `yaml:"iface_lo"`
	MaxConns      int    `yaml:"max_conns"`
	MaxConnsPerIP int    `yaml:"max_conns_per_ip"`

	// seccomp policy
	SeccompDefault string   `yaml:"seccomp_default"`
	SeccompAllow   []string `yaml:"seccomp_allow"`

	// listen mode bind address
	Bind string `yaml:"bind"`
}

// New returns a config with the documented defaults.
func New() *Jail {
	return &Jail{
		CgroupMemSwapMax: -1,
		CgroupV2Mount:    "/sys/fs/cgroup",
		CgroupMemMount:   "/sys/fs/cgroup/memory",
		CgroupPidsMount:  "/sys/fs/cgroup/pids",
		CgroupCPUMount:   "/sys/fs/cgroup/cpu",
		Hostname:         "NSJAIL",
		Cwd:              "/",
		SeccompDefault:   "allow",
		Bind:             ":9000",
	}
}

// Validate checks the config for inconsistencies before any kernel
// state is touched.
func (c *Jail) Validate() error {
	if c.ExecFile == "" {
		return errors.New("config: exec_file is required")
	}
	if len(c.Argv) == 0 {
		c.Argv = []string{c.ExecFile}
	}
	if c.UseExecveat && !c.ExecMemfd && c.ExecFd == 0 {
		return errors.New("config: use_execveat requires a preopened exec fd or exec_memfd")
	}
	if c.Mode == ModeListen && c.Bind == "" {
		return errors.New("config: listen mode requires a bind address")
	}
	if c.CgroupMemMemswMax > 0 && c.CgroupMemMemswMax < c.CgroupMemMax {
		return errors.New("config: cgroup_mem_memsw_max below cgroup_mem_max")
	}
	return nil
}

// CgroupConfig narrows the config for the cgroup manager.
func (c *Jail) CgroupConfig() *cgroup.Config {
	return &cgroup.Config{
		Mount:       c.CgroupV2Mount,
		MemMax:      c.CgroupMemMax,
		MemSwapMax:  c.CgroupMemSwapMax,
		MemMemswMax: c.CgroupMemMemswMax,
		PidsMax:     c.CgroupPidsMax,
		CPUMsPerSec: c.CgroupCPUMsPerSec,
		MemMount:    c.CgroupMemMount,
		PidsMount:   c.CgroupPidsMount,
		CPUMount:    c.CgroupCPUMount,
	}
}

// RLimits builds the rlimit set applied inside the child. Returns the
// empty set when rlimits are disabled.
func (c *Jail) RLimits() rlimit.RLimits {
	if c.DisableRL {
		return rlimit.RLimits{}
	}
	return rlimit.RLimits{
		CPU:          c.RLCPU,
		FileSize:     c.RLFsize,
		AddressSpace: c.RLAS,
		NoFile:       c.RLNofile,
		NProc:        c.RLNproc,
		Stack:        c.RLStack,
		DisableCore:  c.RLCore == 0,
	}
}
