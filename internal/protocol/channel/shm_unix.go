//go:build unix

package channel

import "golang.org/x/sys/unix"

const sharedSupported = true

// mapShared returns an anonymous shared mapping that survives handoff to
// another goroutine or a forked worker without copying.
func mapShared(n int) ([]byte, error) {
	return unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
}

func unmapShared(b []byte) error {
	return unix.Munmap(b)
}
