package net

import (
	stdnet "net"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/criyle/go-jail/config"
)

func tcpPair(t *testing.T) (client, server *stdnet.TCPConn) {
	t.Helper()
	l, err := stdnet.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	done := make(chan struct{})
	go func() {
		c, err := l.Accept()
		if err == nil {
			server = c.(*stdnet.TCPConn)
		}
		close(done)
	}()
	c, err := stdnet.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	client = c.(*stdnet.TCPConn)
	<-done
	if server == nil {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestConnToText(t *testing.T) {
	_, server := tcpPair(t)
	f, err := server.File()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	txt, sa := ConnToText(int(f.Fd()), true)
	if !strings.HasPrefix(txt, "127.0.0.1:") {
		t.Errorf("ConnToText = %q", txt)
	}
	if sa == nil {
		t.Error("nil sockaddr for tcp peer")
	}

	if txt, sa := ConnToText(-1, true); txt != "[standalone]" || sa != nil {
		t.Errorf("ConnToText(-1) = %q, %v", txt, sa)
	}
	if txt, _ := ConnToText(devNull(t), true); txt != "[unknown]" {
		t.Errorf("ConnToText(non-socket) = %q", txt)
	}
}

func devNull(t *testing.T) int {
	t.Helper()
	fd, err := unix.Open("/dev/null", unix.O_RDONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { unix.Close(fd) })
	return fd
}

func TestLimitConns(t *testing.T) {
	_, server := tcpPair(t)
	f, err := server.File()
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fd := int(f.Fd())
	_, peer := ConnToText(fd, true)

	conf := config.New()
	if !LimitConns(conf, fd, nil) {
		t.Error("unlimited config refused a connection")
	}

	conf.MaxConns = 2
	if !LimitConns(conf, fd, []unix.Sockaddr{peer}) {
		t.Error("refused below the total limit")
	}
	if LimitConns(conf, fd, []unix.Sockaddr{peer, peer}) {
		t.Error("accepted at the total limit")
	}

	conf.MaxConns = 0
	conf.MaxConnsPerIP = 1
	if LimitConns(conf, fd, []unix.Sockaddr{peer}) {
		t.Error("accepted beyond the per-ip limit")
	}
	if !LimitConns(conf, fd, nil) {
		t.Error("refused the first connection of an ip")
	}
}
