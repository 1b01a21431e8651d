// Package subproc is the supervisor core of the jail runner. It clones
// jailed children into their namespaces, synchronises the parent and
// child across a one-byte handshake, tracks live children in a process
// table, reaps and classifies exits, enforces wallclock limits and
// diagnoses seccomp violations.
//
// The supervisor is a single-threaded event loop: parallelism exists
// only as separate OS processes created by clone, so the process table
// needs no locking.
package subproc

import (
	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/pkg/cgroup"
)

// handshake protocol: parent tells the child its namespaces are ready,
// the child reports setup failure before exec. EOF means abort.
const (
	handshakeDone = 'D'
	handshakeErr  = 'E'
)

// Runtime is the supervisor state for one jail instance: the immutable
// config, the chosen cgroup manager and the table of live children.
type Runtime struct {
	Conf   *config.Jail
	Cgroup cgroup.Manager

	pids map[int]*procInfo
}

// NewRuntime creates a supervisor context.
func NewRuntime(conf *config.Jail, cg cgroup.Manager) *Runtime {
	return &Runtime{
		Conf:   conf,
		Cgroup: cg,
		pids:   make(map[int]*procInfo),
	}
}
