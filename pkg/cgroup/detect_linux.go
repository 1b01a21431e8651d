package cgroup

import (
	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"
)

// Detect reports whether mount refers to a mounted cgroup2 filesystem.
// Any statfs failure is non-fatal and reported as unavailable.
func Detect(mount string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(mount, &st); err != nil {
		klog.V(1).Infof("statfs %s failed: %v", mount, err)
		return false
	}
	return st.Type == unix.CGROUP2_SUPER_MAGIC
}
