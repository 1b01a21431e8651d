// Package pipe provides a wrapper to create a pipe and collect at most
// max+1 bytes from its read side into a memory buffer; the extra byte
// shows whether the output exceeded max.
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Buffer owns the write end of a pipe whose read end is drained into
// Buffer by a background goroutine. Done is closed once max+1 bytes
// were collected or the write side was closed.
type Buffer struct {
	W      *os.File
	Max    int64
	Buffer *bytes.Buffer
	Done   <-chan struct{}
}

// NewPipe creates a pipe and a goroutine copying at most n bytes from
// the read end into writer. The caller owns and must close w.
func NewPipe(writer io.Writer, n int64) (<-chan struct{}, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	done := make(chan struct{})
	go func() {
		io.CopyN(writer, r, n)
		close(done)
		// drain the rest so the writer never blocks or gets SIGPIPE
		io.Copy(io.Discard, r)
		r.Close()
	}()
	return done, w, nil
}

// NewBuffer creates a pipe collecting at most max+1 bytes. W must be
// closed by the caller before Done can be relied upon for completion.
func NewBuffer(max int64) (*Buffer, error) {
	buffer := new(bytes.Buffer)
	done, w, err := NewPipe(buffer, max+1)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		W:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

func (b Buffer) String() string {
	return fmt.Sprintf("Buffer[%d/%d]", b.Buffer.Len(), b.Max)
}
