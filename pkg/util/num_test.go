package util

import "testing"

func TestParseInt64(t *testing.T) {
	t.Parallel()
	for _, c := range []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"42\n", 42, true},
		{"42  \t\n", 42, true},
		{"9223372036854775807", 9223372036854775807, true},
		{"", 0, false},
		{"  42", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"42x", 0, false},
		{"42 17", 0, false},
		{"x42", 0, false},
		{"9223372036854775808", 0, false},
		{"0x10", 0, false},
		{"4.2", 0, false},
	} {
		got, err := ParseInt64(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseInt64(%q) = %d, %v; want %d", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseInt64(%q) = %d, nil; want error", c.in, got)
		}
	}
}
