// Package signame maps POSIX signal numbers to their symbolic names.
//
// perpetrate.c treated this as an external collaborator (sysstr_signal());
// this table restores it concretely for the subset of signals the control
// protocol and the reset-argv encoding need to name.
package signame

import "golang.org/x/sys/unix"

var names = map[unix.Signal]string{
	unix.SIGHUP:   "SIGHUP",
	unix.SIGINT:   "SIGINT",
	unix.SIGQUIT:  "SIGQUIT",
	unix.SIGILL:   "SIGILL",
	unix.SIGTRAP:  "SIGTRAP",
	unix.SIGABRT:  "SIGABRT",
	unix.SIGBUS:   "SIGBUS",
	unix.SIGFPE:   "SIGFPE",
	unix.SIGKILL:  "SIGKILL",
	unix.SIGUSR1:  "SIGUSR1",
	unix.SIGSEGV:  "SIGSEGV",
	unix.SIGUSR2:  "SIGUSR2",
	unix.SIGPIPE:  "SIGPIPE",
	unix.SIGALRM:  "SIGALRM",
	unix.SIGTERM:  "SIGTERM",
	unix.SIGCHLD:  "SIGCHLD",
	unix.SIGCONT:  "SIGCONT",
	unix.SIGSTOP:  "SIGSTOP",
	unix.SIGTSTP:  "SIGTSTP",
	unix.SIGTTIN:  "SIGTTIN",
	unix.SIGTTOU:  "SIGTTOU",
	unix.SIGWINCH: "SIGWINCH",
}

// Name returns the symbolic name of n, or "SIGUNKNOWN" if it is not in
// the table — matching perpetrate.c's documented fallback.
func Name(n unix.Signal) string {
	if s, ok := names[n]; ok {
		return s
	}
	return "SIGUNKNOWN"
}
