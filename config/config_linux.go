package config

import "golang.org/x/sys/unix"

// CloneFlags maps the per-namespace booleans to the clone flag bitmask.
func (c *Jail) CloneFlags() uint64 {
	var flags uint64
	if c.CloneNewnet {
		flags |= unix.CLONE_NEWNET
	}
	if c.CloneNewuser {
		flags |= unix.CLONE_NEWUSER
	}
	if c.CloneNewns {
		flags |= unix.CLONE_NEWNS
	}
	if c.CloneNewpid {
		flags |= unix.CLONE_NEWPID
	}
	if c.CloneNewipc {
		flags |= unix.CLONE_NEWIPC
	}
	if c.CloneNewuts {
		flags |= unix.CLONE_NEWUTS
	}
	if c.CloneNewcgroup {
		flags |= unix.CLONE_NEWCGROUP
	}
	if c.CloneNewtime {
		flags |= unix.CLONE_NEWTIME
	}
	return flags
}
