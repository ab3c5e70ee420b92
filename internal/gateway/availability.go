package gateway

import "sync/atomic"

// AvailabilityGate is the process-wide kill switch for write routes.
type AvailabilityGate struct {
	maintenance atomic.Bool
}

// NewAvailabilityGate returns a gate. When maintenance is true every write
// route answers ErrUnavailable.
func NewAvailabilityGate(maintenance bool) *AvailabilityGate {
	g := &AvailabilityGate{}
	g.maintenance.Store(maintenance)
	return g
}

// Available reports whether write traffic is accepted.
func (g *AvailabilityGate) Available() bool {
	return !g.maintenance.Load()
}
