// Package cgroup places jailed children under cgroup resource limits
// and collects post-mortem usage statistics. Both the unified (v2) and
// the legacy split-controller (v1) hierarchies are supported behind a
// common Manager interface; the variant is picked once at startup by
// filesystem detection and callers never branch on it again.
package cgroup

import "fmt"

// Manager controls the cgroup lifecycle of jailed children.
type Manager interface {
	// Setup prepares the hierarchy root once per supervisor, before the
	// first child is created.
	Setup() error

	// InitFromParent creates and populates the per-child cgroup and
	// moves pid into it. It must complete before the child execs.
	InitFromParent(pid int) error

	// FinishFromParent logs usage statistics and removes the per-child
	// cgroup. It must only run after the child has been reaped.
	FinishFromParent(pid int)
}

// Config selects the controllers and limits applied to each child.
type Config struct {
	// Mount is the absolute path of the cgroup2 filesystem root.
	Mount string

	// MemMax limits memory in bytes; 0 means no memory limit.
	MemMax uint64
	// MemSwapMax limits swap in bytes; negative means unset.
	MemSwapMax int64
	// MemMemswMax is the legacy combined memory+swap limit. When
	// nonzero the effective swap limit is MemMemswMax - MemMax.
	MemMemswMax uint64

	// PidsMax caps the number of processes/threads; 0 means unlimited.
	PidsMax uint64

	// CPUMsPerSec is the cpu bandwidth in milliseconds of cpu time per
	// wallclock second; 0 means unlimited.
	CPUMsPerSec uint64

	// Per-controller v1 hierarchy roots.
	MemMount  string
	PidsMount string
	CPUMount  string
}

// SwapMax derives the effective swap limit, preferring the legacy
// combined limit when set.
func (c *Config) SwapMax() int64 {
	if c.MemMemswMax > 0 {
		return int64(c.MemMemswMax) - int64(c.MemMax)
	}
	return c.MemSwapMax
}

func (c *Config) needMemory() bool {
	return c.MemMax > 0 || c.SwapMax() >= 0
}

func (c *Config) needPids() bool {
	return c.PidsMax != 0
}

func (c *Config) needCPU() bool {
	return c.CPUMsPerSec != 0
}

func (c *Config) needAny() bool {
	return c.needMemory() || c.needPids() || c.needCPU()
}

// controllers lists the v2 controller names required by the config.
func (c *Config) controllers() []string {
	var s []string
	if c.needMemory() {
		s = append(s, ctrlMemory)
	}
	if c.needPids() {
		s = append(s, ctrlPids)
	}
	if c.needCPU() {
		s = append(s, ctrlCPU)
	}
	return s
}

// New returns the manager matching the detected hierarchy type.
func New(conf *Config, useV2 bool) Manager {
	if useV2 {
		return &v2Manager{conf: conf}
	}
	return &v1Manager{conf: conf}
}

func (c *Config) String() string {
	return fmt.Sprintf("cgroup[mem=%d swap=%d pids=%d cpu=%dms/s]",
		c.MemMax, c.SwapMax(), c.PidsMax, c.CPUMsPerSec)
}
