package cgroup

import (
	"errors"
	"os"
	"syscall"
)

// readFile reads a cgroup control file and retries the potential EINTR
// error while reading from the slow device (cgroupfs).
func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}

// writeFile writes a cgroup control file and retries the potential
// EINTR error while writing to the slow device (cgroupfs).
func writeFile(p string, content []byte) error {
	err := os.WriteFile(p, content, 0644)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, 0644)
	}
	return err
}

func remove(name string) error {
	if name == "" {
		return nil
	}
	return os.Remove(name)
}
