package cgroup

import (
	"path"
	"strconv"

	"k8s.io/klog/v2"
)

// v1Manager drives the legacy split hierarchy: one subtree per
// controller mount, each holding its own per-child directory.
type v1Manager struct {
	conf *Config
}

var _ Manager = &v1Manager{}

func (m *v1Manager) childPath(root string, pid int) string {
	return path.Join(root, childPrefix+strconv.Itoa(pid))
}

// Setup is a no-op on v1: split hierarchies have no subtree_control and
// no no-internal-processes rule.
func (m *v1Manager) Setup() error {
	return nil
}

func (m *v1Manager) InitFromParent(pid int) error {
	if err := m.initMem(pid); err != nil {
		return err
	}
	if err := m.initPids(pid); err != nil {
		return err
	}
	return m.initCPU(pid)
}

func (m *v1Manager) initMem(pid int) error {
	if !m.conf.needMemory() {
		return nil
	}
	p := m.childPath(m.conf.MemMount, pid)
	if err := createCgroupDir(p); err != nil {
		return err
	}
	if m.conf.MemMax > 0 {
		if err := m.writeLimit(p, "memory.limit_in_bytes", strconv.FormatUint(m.conf.MemMax, 10)); err != nil {
			return err
		}
	}
	if m.conf.MemMemswMax > 0 {
		// memsw accounting may be compiled out; tolerate the failure
		if err := m.writeLimit(p, "memory.memsw.limit_in_bytes", strconv.FormatUint(m.conf.MemMemswMax, 10)); err != nil {
			klog.Warningf("memsw limit not applied for pid=%d: %v", pid, err)
		}
	}
	return addPidToProcs(p, pid)
}

func (m *v1Manager) initPids(pid int) error {
	if !m.conf.needPids() {
		return nil
	}
	p := m.childPath(m.conf.PidsMount, pid)
	if err := createCgroupDir(p); err != nil {
		return err
	}
	if err := m.writeLimit(p, "pids.max", strconv.FormatUint(m.conf.PidsMax, 10)); err != nil {
		return err
	}
	return addPidToProcs(p, pid)
}

func (m *v1Manager) initCPU(pid int) error {
	if !m.conf.needCPU() {
		return nil
	}
	p := m.childPath(m.conf.CPUMount, pid)
	if err := createCgroupDir(p); err != nil {
		return err
	}
	if err := m.writeLimit(p, "cpu.cfs_period_us", strconv.Itoa(cpuPeriodUs)); err != nil {
		return err
	}
	if err := m.writeLimit(p, "cpu.cfs_quota_us", strconv.FormatUint(m.conf.CPUMsPerSec*1000, 10)); err != nil {
		return err
	}
	return addPidToProcs(p, pid)
}

func (m *v1Manager) writeLimit(cgroupPath, resource, value string) error {
	klog.Infof("Setting %q to %q", resource, value)
	if err := writeFile(path.Join(cgroupPath, resource), []byte(value)); err != nil {
		klog.Warningf("Could not update %s: %v", resource, err)
		return err
	}
	return nil
}

func (m *v1Manager) FinishFromParent(pid int) {
	if m.conf.needMemory() {
		p := m.childPath(m.conf.MemMount, pid)
		if b, err := readFile(path.Join(p, "memory.max_usage_in_bytes")); err == nil {
			klog.Infof("Cgroup Stats: MEM_max_usage_bytes=%d",
				parseMemoryPeak(path.Join(p, "memory.max_usage_in_bytes"), b))
		}
		m.removeDir(p)
	}
	if m.conf.needPids() {
		m.removeDir(m.childPath(m.conf.PidsMount, pid))
	}
	if m.conf.needCPU() {
		p := m.childPath(m.conf.CPUMount, pid)
		if b, err := readFile(path.Join(p, "cpuacct.usage")); err == nil {
			klog.Infof("Cgroup Stats: CPU_nsec=%d", parseMemoryPeak(path.Join(p, "cpuacct.usage"), b))
		}
		m.removeDir(p)
	}
}

func (m *v1Manager) removeDir(p string) {
	klog.V(1).Infof("Remove %q", p)
	if err := remove(p); err != nil {
		klog.Warningf("rmdir %q failed: %v", p, err)
	}
}
