package signame

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestName(t *testing.T) {
	cases := []struct {
		sig  unix.Signal
		want string
	}{
		{unix.SIGTERM, "SIGTERM"},
		{unix.SIGKILL, "SIGKILL"},
		{unix.SIGCONT, "SIGCONT"},
		{unix.SIGWINCH, "SIGWINCH"},
		{unix.Signal(9999), "SIGUNKNOWN"},
	}
	for _, c := range cases {
		if got := Name(c.sig); got != c.want {
			t.Errorf("Name(%d) = %q, want %q", c.sig, got, c.want)
		}
	}
}
