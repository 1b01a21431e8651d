// Package contain builds the restricted execution environment of a
// jailed process: stdio installation, filesystem view, hostname,
// working directory and resource limits. For cloned children the
// containment is pre-compiled to raw syscall parameters applied without
// the Go runtime; in standalone mode it is applied in place.
package contain

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/pkg/mount"
	"github.com/criyle/go-jail/pkg/rlimit"
)

// Params is the containment sequence compiled for the cloned child.
type Params struct {
	Mounts    []mount.SyscallParams
	PivotRoot *byte
	Hostname  *byte
	WorkDir   *byte
	RLimits   []rlimit.RLimit
}

// Prepare compiles the containment of c to raw syscall parameters. It
// must run in the parent, before clone.
func Prepare(c *config.Jail) (*Params, error) {
	sps, err := buildMounts(c).Build(true)
	if err != nil {
		return nil, fmt.Errorf("contain: build mounts: %w", err)
	}
	pivotRoot, err := bytePtr(c.PivotRoot)
	if err != nil {
		return nil, err
	}
	var hostname *byte
	if c.CloneNewuts {
		if hostname, err = bytePtr(c.Hostname); err != nil {
			return nil, err
		}
	}
	workDir, err := bytePtr(c.Cwd)
	if err != nil {
		return nil, err
	}
	rl := c.RLimits()
	return &Params{
		Mounts:    sps,
		PivotRoot: pivotRoot,
		Hostname:  hostname,
		WorkDir:   workDir,
		RLimits:   rl.PrepareRLimit(),
	}, nil
}

func buildMounts(c *config.Jail) *mount.Builder {
	b := mount.NewBuilder()
	for _, m := range c.Mounts {
		b.WithBind(m.Source, m.Target, m.ReadOnly)
	}
	for _, t := range c.Tmpfs {
		b.WithTmpfs(t, "")
	}
	if c.MountProc {
		b.WithProc()
	}
	return b
}

func bytePtr(s string) (*byte, error) {
	if s == "" {
		return nil, nil
	}
	return syscall.BytePtrFromString(s)
}

// SetupFD installs the three stdio descriptors on fds 0/1/2.
func SetupFD(fdIn, fdOut, fdErr int) error {
	for i, fd := range []int{fdIn, fdOut, fdErr} {
		if fd == i {
			// already in place; just clear close-on-exec
			if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, 0); err != nil {
				return fmt.Errorf("contain: fcntl fd=%d: %w", fd, err)
			}
			continue
		}
		if err := unix.Dup3(fd, i, 0); err != nil {
			return fmt.Errorf("contain: dup3 %d->%d: %w", fd, i, err)
		}
	}
	return nil
}

// ContainProc applies the containment in the current process. This is
// the standalone-mode path, running after unshare.
func ContainProc(c *config.Jail) error {
	if c.CloneNewns {
		// keep mount changes out of the original namespace
		if err := unix.Mount("none", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("contain: remount / private: %w", err)
		}
	}
	if c.PivotRoot != "" {
		if err := pivotRootInPlace(c); err != nil {
			return err
		}
	} else {
		for _, m := range buildMounts(c).Mounts {
			m := m
			if err := m.Mount(); err != nil {
				return fmt.Errorf("contain: mount %v: %w", m, err)
			}
		}
	}
	if c.CloneNewuts && c.Hostname != "" {
		if err := unix.Sethostname([]byte(c.Hostname)); err != nil {
			return fmt.Errorf("contain: sethostname: %w", err)
		}
	}
	if c.Cwd != "" {
		if err := unix.Chdir(c.Cwd); err != nil {
			return fmt.Errorf("contain: chdir %q: %w", c.Cwd, err)
		}
	}
	rl := c.RLimits()
	for _, r := range rl.PrepareRLimit() {
		lim := unix.Rlimit{Cur: r.Rlim.Cur, Max: r.Rlim.Max}
		if err := unix.Prlimit(0, r.Res, &lim, nil); err != nil {
			return fmt.Errorf("contain: prlimit %v: %w", r, err)
		}
	}
	return nil
}

const oldRootName = "old_root"

func pivotRootInPlace(c *config.Jail) error {
	root := c.PivotRoot
	if err := unix.Mount("tmpfs", root, "tmpfs", 0, ""); err != nil {
		return fmt.Errorf("contain: mount tmpfs on %q: %w", root, err)
	}
	if err := unix.Chdir(root); err != nil {
		return fmt.Errorf("contain: chdir %q: %w", root, err)
	}
	for _, m := range buildMounts(c).Mounts {
		m := m
		if err := m.Mount(); err != nil {
			return fmt.Errorf("contain: mount %v: %w", m, err)
		}
	}
	if err := os.Mkdir(oldRootName, 0755); err != nil {
		return fmt.Errorf("contain: mkdir %s: %w", oldRootName, err)
	}
	if err := unix.PivotRoot(".", oldRootName); err != nil {
		return fmt.Errorf("contain: pivot_root: %w", err)
	}
	if err := unix.Unmount(oldRootName, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("contain: umount %s: %w", oldRootName, err)
	}
	if err := os.Remove(oldRootName); err != nil {
		return fmt.Errorf("contain: rmdir %s: %w", oldRootName, err)
	}
	// the new root stays read-only
	if err := unix.Mount("tmpfs", "/", "tmpfs",
		unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_NOATIME|unix.MS_NOSUID, ""); err != nil {
		return fmt.Errorf("contain: remount / read-only: %w", err)
	}
	return nil
}
