package util

import (
	"errors"
	"strconv"
	"strings"
)

// Parse errors for kernel control file values.
var (
	ErrEmptyValue   = errors.New("no numerical digits found")
	ErrTrailingData = errors.New("extra characters after number")
	ErrValueRange   = errors.New("value out of range")
)

// ParseInt64 parses a non-negative decimal value as written by kernel
// control files (memory.peak, cpu.stat fields). The value must consist
// solely of ASCII digits, optionally followed by whitespace. Signs,
// leading garbage, trailing garbage and values that do not fit in 63
// bits are rejected.
func ParseInt64(s string) (int64, error) {
	t := strings.TrimRight(s, " \t\r\n\v\f")
	if t == "" {
		return 0, ErrEmptyValue
	}
	for i := 0; i < len(t); i++ {
		if t[i] < '0' || t[i] > '9' {
			if i == 0 {
				return 0, ErrEmptyValue
			}
			return 0, ErrTrailingData
		}
	}
	v, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return 0, ErrValueRange
	}
	return v, nil
}
