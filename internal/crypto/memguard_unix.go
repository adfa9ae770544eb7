//go:build linux || darwin

package crypto

import "golang.org/x/sys/unix"

// LockBuffer pins key material so it cannot be swapped out. Best effort:
// callers ignore the error when the mlock rlimit is exhausted.
func LockBuffer(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

func UnlockBuffer(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
