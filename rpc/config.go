// File: rpc/config.go
// Author: momentics <momentics@gmail.com>
//
// Endpoint tuning knobs: request window size, SM retransmission threshold,
// wheel geometry, MTU, and the background worker pool. Mirrors the teacher's
// server.Config / DefaultConfig() pairing.

package rpc

import "github.com/chlin501/eRPC/control"

// SMEvent classifies the notifications an Endpoint delivers for session
// lifecycle transitions that have no continuation to call (connect/error/
// disconnect), per spec §7's "surfaced via the user's SM handler" clause.
type SMEvent int

const (
	SMConnected SMEvent = iota
	SMError
	SMDisconnected
)

func (e SMEvent) String() string {
	switch e {
	case SMConnected:
		return "connected"
	case SMError:
		return "error"
	case SMDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SMNotifyFunc receives session lifecycle notifications. reason is empty for
// a plain connect/disconnect and carries a diagnostic string for Error.
type SMNotifyFunc func(sessionNum uint32, ev SMEvent, reason string)

// Config holds an Endpoint's tunables.
type Config struct {
	WindowSize int // per-session request window, power of two

	RetransMS int64 // SM retransmission threshold in milliseconds

	WheelNumSlots int
	WslotWidthTSC uint64
	MTU           int

	BackgroundWorkers int // 0 defaults to runtime.NumCPU()
	PinCPUBase        int // -1 to leave background workers unpinned

	OnSMEvent SMNotifyFunc

	// Metrics, if non-nil, receives per-tick gauges (session count, retry
	// queue depth, background completion backlog) under the "rpc." prefix.
	// Nil disables reporting entirely; Progress never allocates for it.
	Metrics *control.MetricsRegistry

	// Debug, if non-nil, gets on-demand probes (rpc.sessions,
	// rpc.retry_queue_len, rpc.background_queue_depth, rpc.retrans_ms)
	// instead of a per-tick push, for an operator pulling state via
	// DebugProbes.DumpState rather than scraping Metrics.
	Debug *control.DebugProbes
}

// DefaultConfig returns sane defaults: window of 8, 30ms retransmission
// threshold, a wheel sized for half-microsecond slots over one millisecond
// of horizon, and unpinned background workers.
func DefaultConfig() Config {
	return Config{
		WindowSize:        8,
		RetransMS:         30,
		WheelNumSlots:     2048,
		WslotWidthTSC:     500, // ~0.5us at 1GHz
		MTU:               1024,
		BackgroundWorkers: 0,
		PinCPUBase:        -1,
	}
}

// configKey names the ConfigStore entries FromConfigStore reads. A deployment
// drives these through control.ConfigStore.SetConfig and control.TriggerHotReload
// the same way it drives any other runtime tunable.
const (
	configKeyWindowSize        = "rpc.window_size"
	configKeyRetransMS         = "rpc.retrans_ms"
	configKeyWheelNumSlots     = "rpc.wheel_num_slots"
	configKeyWslotWidthTSC     = "rpc.wslot_width_tsc"
	configKeyMTU               = "rpc.mtu"
	configKeyBackgroundWorkers = "rpc.background_workers"
	configKeyPinCPUBase        = "rpc.pin_cpu_base"
)

// FromConfigStore builds a Config by overlaying cs's current snapshot onto
// DefaultConfig(). Keys absent from the snapshot keep their default. A
// caller that wants live updates registers cs.OnReload itself and rebuilds
// the tunables it can apply without tearing down the Endpoint (RetransMS is
// the only one read after construction, via Endpoint.ApplyRetransMS).
func FromConfigStore(cs *control.ConfigStore) Config {
	cfg := DefaultConfig()
	if cs == nil {
		return cfg
	}
	snap := cs.GetSnapshot()
	if v, ok := snap[configKeyWindowSize].(int); ok {
		cfg.WindowSize = v
	}
	if v, ok := snap[configKeyRetransMS].(int64); ok {
		cfg.RetransMS = v
	}
	if v, ok := snap[configKeyWheelNumSlots].(int); ok {
		cfg.WheelNumSlots = v
	}
	if v, ok := snap[configKeyWslotWidthTSC].(uint64); ok {
		cfg.WslotWidthTSC = v
	}
	if v, ok := snap[configKeyMTU].(int); ok {
		cfg.MTU = v
	}
	if v, ok := snap[configKeyBackgroundWorkers].(int); ok {
		cfg.BackgroundWorkers = v
	}
	if v, ok := snap[configKeyPinCPUBase].(int); ok {
		cfg.PinCPUBase = v
	}
	return cfg
}
