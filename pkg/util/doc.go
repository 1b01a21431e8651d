// Package util provides small helpers shared across the jail runner:
// EINTR-safe file descriptor IO, strict decimal parsing for kernel
// control files, signal name formatting and helper process execution.
package util
