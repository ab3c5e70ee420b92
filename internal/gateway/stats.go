package gateway

import (
	"errors"
	"sync/atomic"
)

// Stats counts request verdicts since start.
type Stats struct {
	uplinks          atomic.Uint64
	commands         atomic.Uint64
	downlinks        atomic.Uint64
	denied           atomic.Uint64
	unavailable      atomic.Uint64
	malformed        atomic.Uint64
	upstreamFailures atomic.Uint64
	partial          atomic.Uint64
	notifyFailures   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Uplinks          uint64 `json:"uplinks"`
	Commands         uint64 `json:"commands"`
	Downlinks        uint64 `json:"downlinks"`
	Denied           uint64 `json:"denied"`
	Unavailable      uint64 `json:"unavailable"`
	Malformed        uint64 `json:"malformed"`
	UpstreamFailures uint64 `json:"upstream_failures"`
	Partial          uint64 `json:"partial"`
	NotifyFailures   uint64 `json:"notify_failures"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Uplinks:          s.uplinks.Load(),
		Commands:         s.commands.Load(),
		Downlinks:        s.downlinks.Load(),
		Denied:           s.denied.Load(),
		Unavailable:      s.unavailable.Load(),
		Malformed:        s.malformed.Load(),
		UpstreamFailures: s.upstreamFailures.Load(),
		Partial:          s.partial.Load(),
		NotifyFailures:   s.notifyFailures.Load(),
	}
}

// record counts an error verdict. Successful requests are counted by the caller.
func (s *Stats) record(err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrAuthDenied):
		s.denied.Add(1)
	case errors.Is(err, ErrUnavailable):
		s.unavailable.Add(1)
	case errors.Is(err, ErrMalformedRequest):
		s.malformed.Add(1)
	case isPartial(err):
		s.partial.Add(1)
	case errors.Is(err, ErrUpstreamFailure):
		s.upstreamFailures.Add(1)
	}
}

func isPartial(err error) bool {
	return errors.Is(err, ErrUpstreamPartial)
}
