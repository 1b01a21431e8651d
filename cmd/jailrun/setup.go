package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/config"
	"github.com/criyle/go-jail/pkg/cgroup"
	"github.com/criyle/go-jail/pkg/memfd"
	"github.com/criyle/go-jail/subproc"
)

var configPath string

// jailFlags mirrors the config fields settable from the command line;
// set flags override the config file.
type jailFlags struct {
	newnet, newuser, newns, newpid, newipc, newuts, newcgroup, newtime bool

	tlimit    uint64
	rlCPU     uint64
	disableRL bool

	memMax      uint64
	pidsMax     uint64
	cpuMsPerSec uint64
	cgroupMount string

	keepEnv   bool
	envs      []string
	hostname  string
	cwd       string
	execMemfd bool

	seccompDefault string
	seccompAllow   []string

	bind string
}

func (f *jailFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&f.newnet, "clone-newnet", false, "create a new network namespace")
	fs.BoolVar(&f.newuser, "clone-newuser", false, "create a new user namespace")
	fs.BoolVar(&f.newns, "clone-newns", false, "create a new mount namespace")
	fs.BoolVar(&f.newpid, "clone-newpid", false, "create a new pid namespace")
	fs.BoolVar(&f.newipc, "clone-newipc", false, "create a new ipc namespace")
	fs.BoolVar(&f.newuts, "clone-newuts", false, "create a new uts namespace")
	fs.BoolVar(&f.newcgroup, "clone-newcgroup", false, "create a new cgroup namespace")
	fs.BoolVar(&f.newtime, "clone-newtime", false, "create a new time namespace")

	fs.Uint64Var(&f.tlimit, "tlimit", 0, "wallclock limit in seconds (0 = unlimited)")
	fs.Uint64Var(&f.rlCPU, "rl-cpu", 0, "RLIMIT_CPU in seconds (0 = unlimited)")
	fs.BoolVar(&f.disableRL, "disable-rl", false, "do not apply rlimits")

	fs.Uint64Var(&f.memMax, "cgroup-mem-max", 0, "cgroup memory limit in bytes")
	fs.Uint64Var(&f.pidsMax, "cgroup-pids-max", 0, "cgroup pids limit")
	fs.Uint64Var(&f.cpuMsPerSec, "cgroup-cpu-ms", 0, "cgroup cpu milliseconds per second")
	fs.StringVar(&f.cgroupMount, "cgroup-mount", "", "cgroup v2 mount point")

	fs.BoolVar(&f.keepEnv, "keep-env", false, "inherit the host environment")
	fs.StringArrayVar(&f.envs, "env", nil, "KEY=VALUE pairs for the child environment")
	fs.StringVar(&f.hostname, "hostname", "", "hostname inside the uts namespace")
	fs.StringVar(&f.cwd, "cwd", "", "working directory of the child")
	fs.BoolVar(&f.execMemfd, "exec-memfd", false, "copy the executable to a sealed memfd and exec by fd")

	fs.StringVar(&f.seccompDefault, "seccomp-default", "", "seccomp default action (allow|errno|kill|log|trap)")
	fs.StringArrayVar(&f.seccompAllow, "seccomp-allow", nil, "syscall names allowed by the seccomp policy")

	fs.StringVar(&f.bind, "bind", "", "listen address for listen mode")
}

// buildConfig merges the config file, the flags and the positional
// argv into the final immutable config.
func (f *jailFlags) buildConfig(cmd *cobra.Command, mode config.Mode, args []string) (*config.Jail, error) {
	var (
		conf *config.Jail
		err  error
	)
	if configPath != "" {
		if conf, err = config.Load(configPath); err != nil {
			return nil, err
		}
	} else {
		conf = config.New()
	}
	conf.Mode = mode

	set := cmd.Flags().Changed
	if set("clone-newnet") {
		conf.CloneNewnet = f.newnet
	}
	if set("clone-newuser") {
		conf.CloneNewuser = f.newuser
	}
	if set("clone-newns") {
		conf.CloneNewns = f.newns
	}
	if set("clone-newpid") {
		conf.CloneNewpid = f.newpid
	}
	if set("clone-newipc") {
		conf.CloneNewipc = f.newipc
	}
	if set("clone-newuts") {
		conf.CloneNewuts = f.newuts
	}
	if set("clone-newcgroup") {
		conf.CloneNewcgroup = f.newcgroup
	}
	if set("clone-newtime") {
		conf.CloneNewtime = f.newtime
	}
	if set("tlimit") {
		conf.TimeLimit = f.tlimit
	}
	if set("rl-cpu") {
		conf.RLCPU = f.rlCPU
	}
	if set("disable-rl") {
		conf.DisableRL = f.disableRL
	}
	if set("cgroup-mem-max") {
		conf.CgroupMemMax = f.memMax
	}
	if set("cgroup-pids-max") {
		conf.CgroupPidsMax = f.pidsMax
	}
	if set("cgroup-cpu-ms") {
		conf.CgroupCPUMsPerSec = f.cpuMsPerSec
	}
	if set("cgroup-mount") {
		conf.CgroupV2Mount = f.cgroupMount
	}
	if set("keep-env") {
		conf.KeepEnv = f.keepEnv
	}
	if len(f.envs) > 0 {
		conf.Envs = append(conf.Envs, f.envs...)
	}
	if set("hostname") {
		conf.Hostname = f.hostname
	}
	if set("cwd") {
		conf.Cwd = f.cwd
	}
	if set("exec-memfd") {
		conf.ExecMemfd = f.execMemfd
	}
	if set("seccomp-default") {
		conf.SeccompDefault = f.seccompDefault
	}
	if len(f.seccompAllow) > 0 {
		conf.SeccompAllow = append(conf.SeccompAllow, f.seccompAllow...)
	}
	if set("bind") {
		conf.Bind = f.bind
	}

	if len(args) > 0 {
		conf.ExecFile = args[0]
		conf.Argv = args
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// setupRuntime detects the cgroup hierarchy, prepares the root subtree
// and the exec fd, and builds the supervisor context.
func setupRuntime(conf *config.Jail) (*subproc.Runtime, error) {
	conf.UseCgroupV2 = cgroup.Detect(conf.CgroupV2Mount)
	klog.V(1).Infof("cgroup v2 detected: %v (mount %q)", conf.UseCgroupV2, conf.CgroupV2Mount)

	mgr := cgroup.New(conf.CgroupConfig(), conf.UseCgroupV2)
	if err := mgr.Setup(); err != nil {
		return nil, fmt.Errorf("cgroup setup: %w", err)
	}

	if conf.ExecMemfd {
		f, err := memfd.ForExec(conf.ExecFile)
		if err != nil {
			return nil, err
		}
		// the config owns the file so the finalizer never closes the
		// fd while children still exec from it
		conf.ExecHandle = f
		conf.ExecFd = f.Fd()
		conf.UseExecveat = true
	}

	return subproc.NewRuntime(conf, mgr), nil
}
