package cgroup

import (
	"bufio"
	"bytes"
	"strings"

	"k8s.io/klog/v2"

	"github.com/criyle/go-jail/pkg/util"
)

// parseMemoryPeak parses the single decimal value of memory.peak.
// Malformed or out-of-range content yields -1.
func parseMemoryPeak(path string, b []byte) int64 {
	v, err := util.ParseInt64(string(b))
	if err != nil {
		klog.Warningf("Could not parse %q content %.20q: %v", path, string(b), err)
		return -1
	}
	return v
}

// parseCPUStat extracts user_usec and system_usec from cpu.stat. Each
// value is -1 when no well-formed line for its key exists; malformed
// lines are skipped and the first well-formed occurrence of a key wins.
func parseCPUStat(path string, b []byte) (user, system int64) {
	user, system = -1, -1
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		line := s.Text()
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "user_usec":
			if user != -1 {
				continue
			}
			v, err := util.ParseInt64(parts[1])
			if err != nil {
				klog.Warningf("Could not parse user_usec in %q, line %q: %v", path, line, err)
				continue
			}
			user = v
		case "system_usec":
			if system != -1 {
				continue
			}
			v, err := util.ParseInt64(parts[1])
			if err != nil {
				klog.Warningf("Could not parse system_usec in %q, line %q: %v", path, line, err)
				continue
			}
			system = v
		}
		if user != -1 && system != -1 {
			break
		}
	}
	return user, system
}
