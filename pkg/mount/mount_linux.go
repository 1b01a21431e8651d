package mount

import (
	"os"
	"path/filepath"
	"syscall"
)

// Mount applies the mount in the current process. This is the
// standalone-mode path; cloned children apply the compiled
// SyscallParams instead.
func (m *Mount) Mount() error {
	if m.MakeNod {
		if err := os.MkdirAll(filepath.Dir(m.Target), 0755); err != nil {
			return err
		}
		if f, err := os.OpenFile(m.Target, os.O_CREATE, 0755); err == nil {
			f.Close()
		}
	} else if err := os.MkdirAll(m.Target, 0755); err != nil {
		return err
	}
	if err := syscall.Mount(m.Source, m.Target, m.FsType, m.Flags, m.Data); err != nil {
		return err
	}
	// bind mounts do not honor the ro flag and need a remount
	const bindRo = syscall.MS_BIND | syscall.MS_RDONLY
	if m.Flags&bindRo == bindRo {
		if err := syscall.Mount("", m.Target, m.FsType, m.Flags|syscall.MS_REMOUNT, m.Data); err != nil {
			return err
		}
	}
	return nil
}
