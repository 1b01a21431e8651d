package util

import (
	"golang.org/x/sys/unix"
)

// ReadFromFd reads up to len(buf) bytes from fd, retrying on EINTR.
func ReadFromFd(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// WriteToFd writes all of buf to fd, retrying on EINTR and short writes.
func WriteToFd(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// ReadFromFile reads up to max bytes from the file at path. The open is
// O_RDONLY|O_CLOEXEC and both open and read retry on EINTR.
func ReadFromFile(path string, max int) ([]byte, error) {
	fd, err := openRetry(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	buf := make([]byte, max)
	n, err := ReadFromFd(fd, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteBufToFile writes buf to an existing file at path with
// O_WRONLY|O_CLOEXEC. The returned error preserves the syscall errno so
// callers can branch on conditions like EBUSY.
func WriteBufToFile(path string, buf []byte) error {
	fd, err := openRetry(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if err := WriteToFd(fd, buf); err != nil {
		unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}

func openRetry(path string, flags int, perm uint32) (int, error) {
	for {
		fd, err := unix.Open(path, flags, perm)
		if err == unix.EINTR {
			continue
		}
		return fd, err
	}
}
