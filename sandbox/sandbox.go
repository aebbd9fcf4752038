// Package sandbox confines the daemon after startup: system calls are
// pledged down to socket and pf work, and the filesystem is hidden
// except for the handful of paths the daemon keeps touching.
package sandbox

// Paths lists what stays reachable after Confine.
type Paths struct {
	// read-only: certificates, configuration, preload file
	ReadOnly []string
	// read-write: sockets written to at runtime, like /dev/log
	ReadWrite []string
	// the control socket, bound after confinement and removed at
	// shutdown
	Socket string
	// the log file, reopened on demand when set
	LogFile string
}

// Confine applies the sandbox. It must run after /dev/pf is open and
// before the control socket is bound.
func Confine(paths Paths) error {
	return confine(paths)
}
