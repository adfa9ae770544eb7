//go:build linux || darwin

// Package platform holds process-hardening helpers applied before key
// material enters memory.
package platform

import "golang.org/x/sys/unix"

// DisableCoreDumps sets the core rlimit to zero so a crash cannot write
// decrypted vault contents to disk.
func DisableCoreDumps() error {
	var rlim unix.Rlimit
	return unix.Setrlimit(unix.RLIMIT_CORE, &rlim)
}
