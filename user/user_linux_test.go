package user

import (
	"testing"

	"github.com/criyle/go-jail/config"
)

func TestFormatIDMappings(t *testing.T) {
	t.Parallel()
	if got := formatIDMappings(nil); got != nil {
		t.Errorf("formatIDMappings(nil) = %q", got)
	}
	got := formatIDMappings([]config.IDMap{
		{Inside: 0, Outside: 1000, Count: 1},
		{Inside: 1, Outside: 100000, Count: 65536},
	})
	want := "0 1000 1\n1 100000 65536\n"
	if string(got) != want {
		t.Errorf("formatIDMappings = %q, want %q", got, want)
	}
}

func TestInitNsFromParentNoUserNs(t *testing.T) {
	t.Parallel()
	c := config.New()
	c.ExecFile = "/bin/true"
	if err := InitNsFromParent(c, 1); err != nil {
		t.Errorf("expected no-op without user namespace, got %v", err)
	}
}
