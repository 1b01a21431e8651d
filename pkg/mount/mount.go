// Package mount describes the filesystem view constructed inside a
// jailed child. Mount points are pre-compiled to raw syscall parameters
// in the parent so the cloned child can apply them without touching the
// Go runtime.
package mount

import (
	"fmt"
	"syscall"
)

// Mount defines one mount syscall performed inside the child.
type Mount struct {
	Source, Target, FsType, Data string
	Flags                        uintptr
	// MakeNod marks targets that are files rather than directories, so
	// the child creates them with mknod instead of mkdir.
	MakeNod bool
}

func (m Mount) String() string {
	switch {
	case m.Flags&syscall.MS_BIND == syscall.MS_BIND:
		flag := "rw"
		if m.Flags&syscall.MS_RDONLY == syscall.MS_RDONLY {
			flag = "ro"
		}
		return fmt.Sprintf("bind[%s:%s:%s]", m.Source, m.Target, flag)

	case m.FsType == "tmpfs":
		return fmt.Sprintf("tmpfs[%s]", m.Target)

	case m.FsType == "proc":
		return "proc[]"

	default:
		return fmt.Sprintf("mount[%s,%s:%s:%x,%s]", m.FsType, m.Source, m.Target, m.Flags, m.Data)
	}
}
