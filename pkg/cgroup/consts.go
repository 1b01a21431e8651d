package cgroup

const (
	cgroupProcs          = "cgroup.procs"
	cgroupSubtreeControl = "cgroup.subtree_control"

	ctrlMemory = "memory"
	ctrlPids   = "pids"
	ctrlCPU    = "cpu"

	// cgroup directory name prefixes: per-child and supervisor-self
	childPrefix = "NSJAIL."
	selfPrefix  = "NSJAIL_SELF."

	dirPerm = 0700

	// cpu.max period in microseconds
	cpuPeriodUs = 1000000

	// read size for control files
	readBufSize = 4096
)
