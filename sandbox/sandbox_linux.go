// Package sandbox compiles and applies the seccomp policy of a jail.
// Applying the policy must be the last step before exec: afterwards
// most syscalls are disallowed.
package sandbox

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/pkg/seccomp"
)

// PrepareFilter compiles the configured policy to the sock_fprog form
// loaded by the cloned child. A config without an allow-list (default
// action "allow") yields nil: no filter is installed.
func PrepareFilter(c *config.Jail) (*syscall.SockFprog, error) {
	if len(c.SeccompAllow) == 0 && (c.SeccompDefault == "" || c.SeccompDefault == "allow") {
		return nil, nil
	}
	def, err := defaultAction(c.SeccompDefault)
	if err != nil {
		return nil, err
	}
	b := seccomp.Builder{
		Allow:   c.SeccompAllow,
		Default: def,
	}
	filter, err := b.Build()
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("compiled seccomp policy: %d instructions, default %q", len(filter), c.SeccompDefault)
	return filter.SockFprog(), nil
}

// ApplyPolicy installs the policy in the current process with
// no_new_privs and thread sync. This is the standalone-mode path.
func ApplyPolicy(c *config.Jail) error {
	if len(c.SeccompAllow) == 0 && (c.SeccompDefault == "" || c.SeccompDefault == "allow") {
		return nil
	}
	def, err := defaultAction(c.SeccompDefault)
	if err != nil {
		return err
	}
	policy := libseccomp.Policy{
		DefaultAction: def,
		Syscalls: []libseccomp.SyscallGroup{
			{
				Action: libseccomp.ActionAllow,
				Names:  c.SeccompAllow,
			},
		},
	}
	filter := libseccomp.Filter{
		NoNewPrivs: true,
		Flag:       libseccomp.FilterFlagTSync,
		Policy:     policy,
	}
	return libseccomp.LoadFilter(filter)
}

func defaultAction(name string) (libseccomp.Action, error) {
	switch name {
	case "", "kill":
		return libseccomp.ActionKillProcess, nil
	case "kill_thread":
		return libseccomp.ActionKillThread, nil
	case "trap":
		return libseccomp.ActionTrap, nil
	case "errno":
		return libseccomp.ActionErrno, nil
	case "log":
		return libseccomp.ActionLog, nil
	case "allow":
		return libseccomp.ActionAllow, nil
	default:
		return 0, fmt.Errorf("sandbox: unknown seccomp default action %q", name)
	}
}
