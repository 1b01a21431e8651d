package seccomp

import (
	"fmt"
	"syscall"

	libseccomp "github.com/elastic/go-seccomp-bpf"
	"golang.org/x/net/bpf"
)

// Builder compiles an allow-list policy into a Filter.
type Builder struct {
	// Allow lists syscall names that remain permitted.
	Allow []string
	// Default is the action taken for any other syscall.
	Default libseccomp.Action
}

// Build assembles the policy to the raw BPF program loadable by the
// seccomp syscall.
func (b *Builder) Build() (Filter, error) {
	policy := libseccomp.Policy{
		DefaultAction: b.Default,
	}
	if len(b.Allow) > 0 {
		policy.Syscalls = []libseccomp.SyscallGroup{
			{
				Action: libseccomp.ActionAllow,
				Names:  b.Allow,
			},
		}
	}

	insts, err := policy.Assemble()
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble policy: %w", err)
	}
	raw, err := bpf.Assemble(insts)
	if err != nil {
		return nil, fmt.Errorf("seccomp: assemble bpf: %w", err)
	}

	filter := make(Filter, 0, len(raw))
	for _, ins := range raw {
		filter = append(filter, syscall.SockFilter{
			Code: ins.Op,
			Jt:   ins.Jt,
			Jf:   ins.Jf,
			K:    ins.K,
		})
	}
	return filter, nil
}
