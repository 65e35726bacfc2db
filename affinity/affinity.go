// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for pinning background worker OS threads to a
// logical CPU, so the request/response engine's dispatch workers don't
// migrate across cores under the scheduler. Platform-specific
// implementations live in separate files (affinity_linux.go,
// affinity_windows.go, affinity_stub.go) guarded by build tags.

package affinity

// SetAffinity pins the calling OS thread to a given logical CPU/core on
// supported platforms. Callers must run this from the goroutine that is
// meant to stay pinned, and must have locked it to its OS thread first
// (runtime.LockOSThread) or the pin has no lasting effect.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
