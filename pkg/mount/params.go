package mount

import "syscall"

// SyscallParams is a Mount compiled to the raw argument form consumed
// by the cloned child: NUL-terminated strings plus the mkdir prefixes
// of the target path.
type SyscallParams struct {
	Source, Target, FsType, Data *byte
	Flags                        uintptr
	Prefixes                     []*byte
	MakeNod                      bool
}

// ToSyscall compiles the mount to SyscallParams.
func (m *Mount) ToSyscall() (*SyscallParams, error) {
	var data *byte
	source, err := syscall.BytePtrFromString(m.Source)
	if err != nil {
		return nil, err
	}
	target, err := syscall.BytePtrFromString(m.Target)
	if err != nil {
		return nil, err
	}
	fsType, err := syscall.BytePtrFromString(m.FsType)
	if err != nil {
		return nil, err
	}
	if m.Data != "" {
		if data, err = syscall.BytePtrFromString(m.Data); err != nil {
			return nil, err
		}
	}
	prefixes, err := arrayPtrFromStrings(pathPrefix(m.Target))
	if err != nil {
		return nil, err
	}
	return &SyscallParams{
		Source:   source,
		Target:   target,
		FsType:   fsType,
		Flags:    m.Flags,
		Data:     data,
		Prefixes: prefixes,
		MakeNod:  m.MakeNod,
	}, nil
}

// pathPrefix lists every ancestor of path including path itself.
func pathPrefix(path string) []string {
	ret := make([]string, 0)
	for i := 1; i < len(path); i++ {
		if path[i] == '/' {
			ret = append(ret, path[:i])
		}
	}
	return append(ret, path)
}

func arrayPtrFromStrings(strs []string) ([]*byte, error) {
	ptrs := make([]*byte, 0, len(strs))
	for _, s := range strs {
		b, err := syscall.BytePtrFromString(s)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, b)
	}
	return ptrs, nil
}
