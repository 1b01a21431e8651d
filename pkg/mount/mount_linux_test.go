package mount

import (
	"os"
	"path/filepath"
	"testing"
)

func TestToSyscallPrefixes(t *testing.T) {
	t.Parallel()
	m := Mount{
		Source: "/usr",
		Target: "usr/local/bin",
		Flags:  roBind,
	}
	sp, err := m.ToSyscall()
	if err != nil {
		t.Fatal(err)
	}
	if len(sp.Prefixes) != 3 {
		t.Errorf("got %d prefixes, want 3", len(sp.Prefixes))
	}
	if sp.Source == nil || sp.Target == nil {
		t.Error("nil source/target pointer")
	}
	if sp.Data != nil {
		t.Error("data pointer should be nil for empty data")
	}
}

func TestBuilderSkipNotExists(t *testing.T) {
	t.Parallel()
	b := NewBuilder().
		WithBind("/nonexistent/source/path", "x", true).
		WithTmpfs("tmp", "size=16m").
		WithProc()
	sps, err := b.Build(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(sps) != 2 {
		t.Errorf("got %d mounts, want 2 (missing bind skipped)", len(sps))
	}
	if _, err := b.Build(false); err == nil {
		t.Error("expected error for missing bind source")
	}
}

func TestBuilderBindFile(t *testing.T) {
	t.Parallel()
	f, err := os.CreateTemp(t.TempDir(), "bindsrc")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	b := NewBuilder().WithBind(f.Name(), filepath.Join("etc", filepath.Base(f.Name())), true)
	if !b.Mounts[0].MakeNod {
		t.Error("file bind source should be marked MakeNod")
	}
	b2 := NewBuilder().WithBind(t.TempDir(), "dir", false)
	if b2.Mounts[0].MakeNod {
		t.Error("directory bind source should not be marked MakeNod")
	}
}
