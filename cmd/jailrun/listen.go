package main

import (
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/subproc"
)

func newListenCmd() *cobra.Command {
	var flags jailFlags
	cmd := &cobra.Command{
		Use:   "listen [flags] -- prog [args...]",
		Short: "accept connections and jail one child per connection",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := flags.buildConfig(cmd, config.ModeListen, args)
			if err != nil {
				return err
			}
			rt, err := setupRuntime(conf)
			if err != nil {
				return err
			}
			return serve(rt, conf)
		},
	}
	flags.register(cmd)
	return cmd
}

// serve is the supervisor event loop: accepted connections become
// jailed children; SIGCHLD and a periodic tick drive the reap pass;
// termination signals kill and reap everything.
func serve(rt *subproc.Runtime, conf *config.Jail) error {
	l, err := net.Listen("tcp", conf.Bind)
	if err != nil {
		return err
	}
	defer l.Close()
	klog.Infof("listening on %s, executing %q per connection", conf.Bind, conf.ExecFile)

	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, unix.SIGCHLD, unix.SIGTERM, unix.SIGINT, unix.SIGQUIT, unix.SIGHUP)

	connCh := make(chan net.Conn)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				klog.Warningf("accept: %v", err)
				close(connCh)
				return
			}
			connCh <- conn
		}
	}()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case conn, ok := <-connCh:
			if !ok {
				rt.KillAndReapAll(unix.SIGKILL)
				return nil
			}
			handleConn(rt, conn)

		case sig := <-sigCh:
			switch sig {
			case unix.SIGCHLD:
				rt.ReapProc()
			case unix.SIGHUP:
				rt.DisplayProc()
			default:
				klog.Infof("received %v, killing all jailed children", sig)
				rt.KillAndReapAll(unix.SIGKILL)
				return nil
			}

		case <-tick.C:
			rt.ReapProc()
		}
	}
}

func handleConn(rt *subproc.Runtime, conn net.Conn) {
	defer conn.Close()
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	f, err := tc.File()
	if err != nil {
		klog.Warningf("could not get connection file: %v", err)
		return
	}
	defer f.Close()

	fd := int(f.Fd())
	pid, err := rt.RunChild(fd, fd, fd, fd)
	if err != nil {
		klog.Warningf("launching jailed child failed: %v", err)
		return
	}
	if pid > 0 {
		klog.Infof("started pid=%d for %s", pid, conn.RemoteAddr())
	}
}
