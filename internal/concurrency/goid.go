// File: internal/concurrency/goid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Go deliberately has no thread-local storage; the standard workaround for
// "is the calling goroutine one of mine" is to parse the goroutine id out of
// runtime.Stack's header line. Used only to answer Endpoint.InBackground(),
// off the hot path.

package concurrency

import (
	"bytes"
	"runtime"
	"strconv"
)

func currentGoID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(fields[1]), 10, 64)
	return id
}
