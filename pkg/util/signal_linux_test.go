package util

import "testing"

func TestSigName(t *testing.T) {
	t.Parallel()
	if got := SigName(9); got != "SIGKILL(9)" {
		t.Errorf("SigName(9) = %q", got)
	}
	if got := SigName(31); got != "SIGSYS(31)" {
		t.Errorf("SigName(31) = %q", got)
	}
	if got := SigName(1000); got != "SIG1000" {
		t.Errorf("SigName(1000) = %q", got)
	}
}
