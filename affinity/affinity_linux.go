//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux implementation via sched_setaffinity(2), through golang.org/x/sys/unix
// rather than cgo, so pinning background workers doesn't drag a C toolchain
// into the build.

package affinity

import "golang.org/x/sys/unix"

// setAffinityPlatform sets the calling thread's affinity mask to cpuID.
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}
