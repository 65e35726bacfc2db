//go:build !dpdk
// +build !dpdk

// File: transport/dpdk_stub.go
// Author: momentics <momentics@gmail.com>
//
// Without the dpdk build tag, NewDPDKAdapter is a stub: real DPDK/RDMA
// integration is explicitly out of scope for this module (spec §1) and
// requires a CGO binding this module does not carry. Build with -tags dpdk
// once such a binding is wired in.

package transport

import "fmt"

// NewDPDKAdapter is unavailable without the dpdk build tag.
func NewDPDKAdapter(nicPort int) (*UDPAdapter, error) {
	return nil, fmt.Errorf("transport: dpdk adapter not built in (build with -tags dpdk), requested port %d", nicPort)
}
