package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/pkg/util"
)

// v2Manager drives the unified cgroup hierarchy rooted at conf.Mount.
type v2Manager struct {
	conf *Config
}

var _ Manager = &v2Manager{}

func (m *v2Manager) childPath(pid int) string {
	return path.Join(m.conf.Mount, childPrefix+strconv.Itoa(pid))
}

func (m *v2Manager) selfPath() string {
	return path.Join(m.conf.Mount, selfPrefix+strconv.Itoa(os.Getpid()))
}

// Setup ensures the required controllers are listed in the root
// cgroup.subtree_control, migrating the supervisor into a child cgroup
// when the kernel's no-internal-processes rule makes the write fail
// with EBUSY.
func (m *v2Manager) Setup() error {
	need := m.conf.controllers()
	if len(need) == 0 {
		return nil
	}

	p := path.Join(m.conf.Mount, cgroupSubtreeControl)
	buf, err := util.ReadFromFile(p, readBufSize)
	if err != nil {
		return fmt.Errorf("could not read root subtree_control: %w", err)
	}

	enabled := make(map[string]bool)
	for _, c := range strings.Fields(string(buf)) {
		enabled[c] = true
	}
	for _, c := range need {
		if enabled[c] {
			continue
		}
		if err := m.enableSubtree(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *v2Manager) enableSubtree(controller string) error {
	p := path.Join(m.conf.Mount, cgroupSubtreeControl)
	val := []byte("+" + controller)
	klog.V(1).Infof("Enable cgroup.subtree_control +%s in %q", controller, m.conf.Mount)

	// Try once in place; on EBUSY move ourselves into a child cgroup to
	// satisfy the no-internal-processes rule and try a second time.
	err := util.WriteBufToFile(p, val)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EBUSY) {
		if merr := m.moveSelfIntoChildCgroup(); merr != nil {
			return merr
		}
		if err = util.WriteBufToFile(p, val); err == nil {
			return nil
		}
	}
	return fmt.Errorf("could not apply %q to cgroup.subtree_control in %q: "+
		"the supervisor must be run from the root/host cgroup to use cgroup v2; "+
		"with Docker, run the container with --cgroupns=host so the host hierarchy is accessible: %w",
		string(val), m.conf.Mount, err)
}

func (m *v2Manager) moveSelfIntoChildCgroup() error {
	p := m.selfPath()
	klog.Infof("supervisor is moving itself to a new child cgroup: %s", p)
	if err := createCgroupDir(p); err != nil {
		return err
	}
	// pid 0 moves the writing process
	return addPidToProcs(p, 0)
}

func createCgroupDir(p string) error {
	if err := os.Mkdir(p, dirPerm); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("mkdir %q: %w", p, err)
	}
	return nil
}

func addPidToProcs(cgroupPath string, pid int) error {
	klog.V(1).Infof("Adding pid=%d to %s/%s", pid, cgroupPath, cgroupProcs)
	if err := writeFile(path.Join(cgroupPath, cgroupProcs), []byte(strconv.Itoa(pid))); err != nil {
		return fmt.Errorf("could not update %s: %w", cgroupProcs, err)
	}
	return nil
}

// InitFromParent creates the per-child cgroup, adds pid to it and
// applies the configured limits, in the parent before the child execs.
func (m *v2Manager) InitFromParent(pid int) error {
	if err := m.initMem(pid); err != nil {
		return err
	}
	if err := m.initPids(pid); err != nil {
		return err
	}
	return m.initCPU(pid)
}

func (m *v2Manager) initMem(pid int) error {
	if !m.conf.needMemory() {
		return nil
	}
	p := m.childPath(pid)
	if err := m.createAndEnter(p, pid); err != nil {
		return err
	}
	if m.conf.MemMax > 0 {
		if err := m.writeLimit(p, "memory.max", strconv.FormatUint(m.conf.MemMax, 10)); err != nil {
			return err
		}
	}
	if swap := m.conf.SwapMax(); swap >= 0 {
		if err := m.writeLimit(p, "memory.swap.max", strconv.FormatInt(swap, 10)); err != nil {
			return err
		}
	}
	return nil
}

func (m *v2Manager) initPids(pid int) error {
	if !m.conf.needPids() {
		return nil
	}
	p := m.childPath(pid)
	if err := m.createAndEnter(p, pid); err != nil {
		return err
	}
	return m.writeLimit(p, "pids.max", strconv.FormatUint(m.conf.PidsMax, 10))
}

func (m *v2Manager) initCPU(pid int) error {
	if !m.conf.needCPU() {
		return nil
	}
	p := m.childPath(pid)
	if err := m.createAndEnter(p, pid); err != nil {
		return err
	}
	// bandwidth format is "$MAX $PERIOD": the group may consume up to
	// $MAX microseconds of cpu time in each $PERIOD window
	return m.writeLimit(p, "cpu.max", cpuMaxValue(m.conf.CPUMsPerSec))
}

func cpuMaxValue(msPerSec uint64) string {
	return strconv.FormatUint(msPerSec*1000, 10) + " " + strconv.Itoa(cpuPeriodUs)
}

func (m *v2Manager) createAndEnter(cgroupPath string, pid int) error {
	klog.V(1).Infof("Create %q for pid=%d", cgroupPath, pid)
	if err := createCgroupDir(cgroupPath); err != nil {
		return err
	}
	return addPidToProcs(cgroupPath, pid)
}

func (m *v2Manager) writeLimit(cgroupPath, resource, value string) error {
	klog.Infof("Setting %q to %q", resource, value)
	if err := writeFile(path.Join(cgroupPath, resource), []byte(value)); err != nil {
		return fmt.Errorf("could not update %s: %w", resource, err)
	}
	return nil
}

// FinishFromParent collects usage statistics and removes the per-child
// cgroup. It must run strictly after the child was reaped so the zombie
// no longer counts against the cgroup.
func (m *v2Manager) FinishFromParent(pid int) {
	if !m.conf.needAny() {
		return
	}
	m.removeCgroup(m.childPath(pid))
}

func (m *v2Manager) removeCgroup(cgroupPath string) {
	memPeak := m.readStat(path.Join(cgroupPath, "memory.peak"), parseMemoryPeak)

	userUsec, systemUsec := int64(-1), int64(-1)
	totalUsec := int64(-1)
	cpuStatPath := path.Join(cgroupPath, "cpu.stat")
	if b, ok := m.readStatFile(cpuStatPath); ok {
		userUsec, systemUsec = parseCPUStat(cpuStatPath, b)
		if userUsec >= 0 && systemUsec >= 0 {
			totalUsec = userUsec + systemUsec
		} else {
			klog.Warningf("Could not determine total CPU usage from %q (user_usec=%d, system_usec=%d)",
				cpuStatPath, userUsec, systemUsec)
		}
	}

	klog.Infof("Cgroup Stats: CPU_usec=%d MEM_peak_bytes=%d (user=%d, system=%d)",
		totalUsec, memPeak, userUsec, systemUsec)

	klog.V(1).Infof("Remove %q", cgroupPath)
	if err := remove(cgroupPath); err != nil {
		klog.Warningf("rmdir %q failed: %v", cgroupPath, err)
	}
}

func (m *v2Manager) readStat(p string, parse func(string, []byte) int64) int64 {
	b, ok := m.readStatFile(p)
	if !ok {
		return -1
	}
	return parse(p, b)
}

func (m *v2Manager) readStatFile(p string) ([]byte, bool) {
	b, err := readFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			klog.V(1).Infof("File %q not found, cgroup might have been removed", p)
		} else {
			klog.Warningf("Failed to read %q: %v", p, err)
		}
		return nil, false
	}
	return b, true
}
