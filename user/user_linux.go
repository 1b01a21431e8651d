// Package user writes the uid/gid mappings of a jailed child's user
// namespace from the parent side, before the child is released to exec.
package user

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/config"
)

var (
	setGIDAllow = []byte("allow")
	setGIDDeny  = []byte("deny")
)

// InitNsFromParent writes uid_map, setgroups and gid_map for pid. The
// child has no capability in its new user namespace, so the parent has
// to do this. No-op when no user namespace is created.
func InitNsFromParent(c *config.Jail, pid int) error {
	if !c.CloneNewuser {
		return nil
	}
	proc := "/proc/" + strconv.Itoa(pid)

	uidMap := formatIDMappings(c.UIDMappings)
	if uidMap == nil {
		uidMap = []byte("0 " + strconv.Itoa(unix.Geteuid()) + " 1")
	}
	klog.V(1).Infof("pid=%d uid_map: %q", pid, uidMap)
	if err := writeMapFile(proc+"/uid_map", uidMap); err != nil {
		return fmt.Errorf("user: write uid_map for pid=%d: %w", pid, err)
	}

	// setgroups must be denied before gid_map is writable by an
	// unprivileged parent
	setGroups := setGIDDeny
	if len(c.GIDMappings) > 0 && c.EnableSetgroups {
		setGroups = setGIDAllow
	}
	if err := writeMapFile(proc+"/setgroups", setGroups); err != nil {
		return fmt.Errorf("user: write setgroups for pid=%d: %w", pid, err)
	}

	gidMap := formatIDMappings(c.GIDMappings)
	if gidMap == nil {
		gidMap = []byte("0 " + strconv.Itoa(unix.Getegid()) + " 1")
	}
	klog.V(1).Infof("pid=%d gid_map: %q", pid, gidMap)
	if err := writeMapFile(proc+"/gid_map", gidMap); err != nil {
		return fmt.Errorf("user: write gid_map for pid=%d: %w", pid, err)
	}
	return nil
}

func formatIDMappings(idMap []config.IDMap) []byte {
	if len(idMap) == 0 {
		return nil
	}
	var data []byte
	for _, im := range idMap {
		line := strconv.FormatUint(uint64(im.Inside), 10) + " " +
			strconv.FormatUint(uint64(im.Outside), 10) + " " +
			strconv.FormatUint(uint64(im.Count), 10) + "\n"
		data = append(data, line...)
	}
	return data
}

func writeMapFile(path string, content []byte) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if _, err := unix.Write(fd, content); err != nil {
		unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}
