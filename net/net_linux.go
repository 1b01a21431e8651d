// Package net provides the supervisor's view of the network: peer
// address stringification, connection admission control and the
// parent-side setup of a child's network namespace.
package net

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"golang.org/x/sys/unix"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/pkg/util"
)

const unknownPeer = "[unknown]"

// ConnToText formats the peer (remote=true) or local address of a
// socket fd. The binary sockaddr is returned alongside for later
// comparison; it is nil when the fd is not a socket.
func ConnToText(fd int, remote bool) (string, unix.Sockaddr) {
	if fd < 0 {
		return "[standalone]", nil
	}
	var (
		sa  unix.Sockaddr
		err error
	)
	if remote {
		sa, err = unix.Getpeername(fd)
	} else {
		sa, err = unix.Getsockname(fd)
	}
	if err != nil {
		return unknownPeer, nil
	}
	return sockaddrToText(sa), sa
}

func sockaddrToText(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(a.Addr), uint16(a.Port)).String()
	case *unix.SockaddrUnix:
		return "unix:" + a.Name
	default:
		return unknownPeer
	}
}

func sockaddrIP(sa unix.Sockaddr) (netip.Addr, bool) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrFrom4(a.Addr), true
	case *unix.SockaddrInet6:
		return netip.AddrFrom16(a.Addr), true
	default:
		return netip.Addr{}, false
	}
}

// LimitConns decides whether a new connection may enter, given the
// remote addresses of the currently jailed children. Zero limits mean
// unlimited.
func LimitConns(c *config.Jail, fd int, active []unix.Sockaddr) bool {
	if c.MaxConns > 0 && len(active) >= c.MaxConns {
		klog.Warningf("Rejecting connection: total limit of %d reached", c.MaxConns)
		return false
	}
	if c.MaxConnsPerIP <= 0 {
		return true
	}
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return true
	}
	ip, ok := sockaddrIP(sa)
	if !ok {
		return true
	}
	cnt := 0
	for _, a := range active {
		if aip, ok := sockaddrIP(a); ok && aip == ip {
			cnt++
		}
	}
	if cnt >= c.MaxConnsPerIP {
		klog.Warningf("Rejecting connection from %s: per-ip limit of %d reached", ip, c.MaxConnsPerIP)
		return false
	}
	return true
}

// InitNsFromParent prepares the child's network namespace from the
// parent side: a macvlan slave of the configured master interface is
// created and moved into the child's netns via the ip helper.
func InitNsFromParent(c *config.Jail, pid int) error {
	if !c.CloneNewnet || c.Iface == "" {
		return nil
	}
	name := "JAILMV." + strconv.Itoa(pid)
	env := []string{"PATH=/usr/sbin:/usr/bin:/sbin:/bin"}
	if rc := util.SystemExe([]string{"ip", "link", "add", "link", c.Iface, name,
		"type", "macvlan", "mode", "bridge"}, env); rc != 0 {
		return fmt.Errorf("net: create macvlan %q on %q failed (rc=%d)", name, c.Iface, rc)
	}
	if rc := util.SystemExe([]string{"ip", "link", "set", name,
		"netns", strconv.Itoa(pid)}, env); rc != 0 {
		// the link never left the host namespace; delete it or failed
		// connections would pile up orphaned interfaces
		if drc := util.SystemExe([]string{"ip", "link", "del", name}, env); drc != 0 {
			klog.Warningf("Couldn't delete dangling macvlan %q (rc=%d)", name, drc)
		}
		return fmt.Errorf("net: move %q into netns of pid=%d failed (rc=%d)", name, pid, rc)
	}
	klog.V(1).Infof("moved macvlan %q into netns of pid=%d", name, pid)
	return nil
}

// SetupLo brings the loopback interface up in the current namespace.
// Used in standalone mode after unshare.
func SetupLo() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return os.NewSyscallError("socket", err)
	}
	defer unix.Close(fd)

	ifr, err := unix.NewIfreq("lo")
	if err != nil {
		return err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return os.NewSyscallError("ioctl SIOCGIFFLAGS", err)
	}
	ifr.SetUint16(ifr.Uint16() | unix.IFF_UP | unix.IFF_RUNNING)
	if err := unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr); err != nil {
		return os.NewSyscallError("ioctl SIOCSIFFLAGS", err)
	}
	return nil
}
