package pipe

import (
	"strings"
	"testing"
)

func TestBufferCollect(t *testing.T) {
	t.Parallel()
	b, err := NewBuffer(1024)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.W.WriteString("hello"); err != nil {
		t.Fatal(err)
	}
	b.W.Close()
	<-b.Done
	if got := b.Buffer.String(); got != "hello" {
		t.Errorf("collected %q", got)
	}
}

func TestBufferLimit(t *testing.T) {
	t.Parallel()
	b, err := NewBuffer(4)
	if err != nil {
		t.Fatal(err)
	}
	// writes beyond the limit complete without blocking the writer
	if _, err := b.W.WriteString(strings.Repeat("x", 64)); err != nil {
		t.Fatal(err)
	}
	b.W.Close()
	<-b.Done
	if b.Buffer.Len() != 5 {
		t.Errorf("collected %d bytes, want max+1=5", b.Buffer.Len())
	}
}
