package mount

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	bind   = unix.MS_BIND | unix.MS_NOSUID | unix.MS_PRIVATE
	roBind = bind | unix.MS_RDONLY
	mFlag  = unix.MS_NOSUID | unix.MS_NOATIME | unix.MS_NODEV
)

// Builder accumulates mount points and compiles them for the child.
type Builder struct {
	Mounts []Mount
}

// NewBuilder creates an empty mount builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithMounts appends mounts to the builder.
func (b *Builder) WithMounts(m []Mount) *Builder {
	b.Mounts = append(b.Mounts, m...)
	return b
}

// WithBind appends a bind mount; file sources are marked for mknod.
func (b *Builder) WithBind(source, target string, readonly bool) *Builder {
	var flags uintptr = bind
	if readonly {
		flags = roBind
	}
	m := Mount{
		Source: source,
		Target: target,
		Flags:  flags,
	}
	if st, err := os.Stat(source); err == nil && !st.IsDir() {
		m.MakeNod = true
	}
	b.Mounts = append(b.Mounts, m)
	return b
}

// WithTmpfs appends a tmpfs mount with the given mount data.
func (b *Builder) WithTmpfs(target, data string) *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "tmpfs",
		Target: target,
		FsType: "tmpfs",
		Flags:  mFlag,
		Data:   data,
	})
	return b
}

// WithProc appends the proc filesystem.
func (b *Builder) WithProc() *Builder {
	b.Mounts = append(b.Mounts, Mount{
		Source: "proc",
		Target: "proc",
		FsType: "proc",
		Flags:  unix.MS_NOSUID,
	})
	return b
}

// Build compiles the mount sequence to raw syscall parameters.
// skipNotExists drops bind mounts whose source is missing instead of
// failing the whole build.
func (b *Builder) Build(skipNotExists bool) ([]SyscallParams, error) {
	ret := make([]SyscallParams, 0, len(b.Mounts))
	for _, m := range b.Mounts {
		if err := bindSourceMissing(m); err != nil {
			if skipNotExists {
				continue
			}
			return nil, err
		}
		sp, err := m.ToSyscall()
		if err != nil {
			return nil, err
		}
		ret = append(ret, *sp)
	}
	return ret, nil
}

func bindSourceMissing(m Mount) error {
	if m.Flags&unix.MS_BIND == unix.MS_BIND {
		if _, err := os.Stat(m.Source); os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (b Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Mounts: ")
	for i, m := range b.Mounts {
		sb.WriteString(m.String())
		if i != len(b.Mounts)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
