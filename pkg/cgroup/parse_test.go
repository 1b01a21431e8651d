package cgroup

import "testing"

func TestParseMemoryPeak(t *testing.T) {
	t.Parallel()
	for _, c := range []struct {
		in   string
		want int64
	}{
		{"123456\n", 123456},
		{"0\n", 0},
		{"9223372036854775807", 9223372036854775807},
		{"", -1},
		{"-5\n", -1},
		{"12x\n", -1},
		{"x12\n", -1},
		{"12 34\n", -1},
		{"9223372036854775808\n", -1},
	} {
		if got := parseMemoryPeak("memory.peak", []byte(c.in)); got != c.want {
			t.Errorf("parseMemoryPeak(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseCPUStat(t *testing.T) {
	t.Parallel()
	for _, c := range []struct {
		in           string
		user, system int64
	}{
		{"usage_usec 300\nuser_usec 100\nsystem_usec 200\n", 100, 200},
		{"user_usec 100\n", 100, -1},
		{"system_usec 200\n", -1, 200},
		{"", -1, -1},
		{"user_usec -1\nsystem_usec 200\n", -1, 200},
		{"user_usec 1 2\nsystem_usec 200\n", -1, 200},
		// only the first occurrence counts
		{"user_usec 100\nuser_usec 999\nsystem_usec 200\n", 100, 200},
		{"user_usec bad\nuser_usec 5\nsystem_usec 6\n", 5, 6},
	} {
		user, system := parseCPUStat("cpu.stat", []byte(c.in))
		if user != c.user || system != c.system {
			t.Errorf("parseCPUStat(%q) = (%d, %d), want (%d, %d)", c.in, user, system, c.user, c.system)
		}
	}
}

func TestCPUMaxValue(t *testing.T) {
	t.Parallel()
	for _, c := range []struct {
		ms   uint64
		want string
	}{
		{100, "100000 1000000"},
		{1000, "1000000 1000000"},
		{1, "1000 1000000"},
	} {
		if got := cpuMaxValue(c.ms); got != c.want {
			t.Errorf("cpuMaxValue(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}
