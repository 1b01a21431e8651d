package util

import (
	"os"
	"testing"
)

func TestSystemExe(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	for _, c := range []struct {
		name string
		args []string
		want int
	}{
		{"exit 0", []string{"/bin/sh", "-c", "exit 0"}, 0},
		{"exit 1", []string{"/bin/sh", "-c", "exit 1"}, 1},
		{"signaled", []string{"/bin/sh", "-c", "kill -KILL $$"}, 2},
		{"exec failure", []string{"/nonexistent/helper"}, -1},
		{"empty argv", nil, -1},
	} {
		if got := SystemExe(c.args, []string{"PATH=/bin:/usr/bin"}); got != c.want {
			t.Errorf("%s: SystemExe = %d, want %d", c.name, got, c.want)
		}
	}
}
