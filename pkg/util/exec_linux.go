package util

import (
	"errors"
	"os/exec"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/pkg/pipe"
)

const helperOutputMax = 4096

// SystemExe runs a helper binary to completion with the given argv and
// environment. Return values: -1 pipe / fork / exec failure, 0 exited
// zero, 1 exited non-zero, 2 killed by a signal. Helper output is
// collected through a pipe buffer and logged at debug level.
func SystemExe(args []string, env []string) int {
	if len(args) == 0 {
		return -1
	}
	buff, err := pipe.NewBuffer(helperOutputMax)
	if err != nil {
		klog.Warningf("SystemExe: failed to create output pipe: %v", err)
		return -1
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Args = args
	cmd.Env = env
	cmd.Stdout = buff.W
	cmd.Stderr = buff.W

	// exec failure is reported through the runtime's CLOEXEC pipe and
	// surfaces as a Start error
	if err := cmd.Start(); err != nil {
		buff.W.Close()
		klog.Warningf("SystemExe: could not execute %q: %v", args[0], err)
		return -1
	}
	err = cmd.Wait()
	buff.W.Close()
	<-buff.Done
	if buff.Buffer.Len() > 0 {
		klog.V(1).Infof("SystemExe: %q output: %s", args[0], buff.Buffer.String())
	}

	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			klog.Warningf("SystemExe: pid=%d killed by signal: %s", ee.Pid(), SigName(int(ws.Signal())))
			return 2
		}
		klog.V(1).Infof("SystemExe: pid=%d exited with exit code: %d", ee.Pid(), ee.ExitCode())
		return 1
	}
	klog.Warningf("SystemExe: wait for %q: %v", args[0], err)
	return -1
}
