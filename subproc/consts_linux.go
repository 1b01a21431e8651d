package subproc

import "golang.org/x/sys/unix"

// consts missing from the syscall package
const (
	seccompSetModeFilter   = 1
	seccompFilterFlagTSync = 1
)

// go does not allow constant uintptr to be negative
var _AT_FDCWD = unix.AT_FDCWD
