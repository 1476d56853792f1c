package permission

import (
	"context"
	"sync"
)

// Capability identifies a device capability the pipeline needs.
type Capability string

const (
	CapCamera        Capability = "camera"
	CapLocation      Capability = "location"
	CapNotifications Capability = "notifications"
	CapPhoneState    Capability = "phone_state"
)

// Decision is the per-capability outcome of a permission request.
type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
)

// Gate reports and requests capability authorization. A denied capability is
// reported as data, never as an error; the caller decides whether to block.
type Gate interface {
	// Granted reports whether every given capability is currently authorized.
	Granted(ctx context.Context, caps ...Capability) (bool, error)
	// RequestAll triggers the OS prompt for each capability and returns the
	// decision per capability. Implementations never retry a denial.
	RequestAll(ctx context.Context, caps ...Capability) (map[Capability]Decision, error)
}

// StaticGate is a Gate seeded with a fixed grant set. Managed devices arrive
// with permissions pre-granted by provisioning, so the OS prompt is a no-op
// that simply reports the provisioned state.
type StaticGate struct {
	mu      sync.Mutex
	granted map[Capability]bool
}

// NewStaticGate returns a gate with the given capabilities granted.
func NewStaticGate(granted ...Capability) *StaticGate {
	g := &StaticGate{granted: make(map[Capability]bool)}
	for _, c := range granted {
		g.granted[c] = true
	}
	return g
}

// Grant marks capabilities as authorized.
func (g *StaticGate) Grant(caps ...Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range caps {
		g.granted[c] = true
	}
}

// Deny marks capabilities as unauthorized.
func (g *StaticGate) Deny(caps ...Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range caps {
		g.granted[c] = false
	}
}

// Granted reports whether all the given capabilities are authorized.
func (g *StaticGate) Granted(_ context.Context, caps ...Capability) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range caps {
		if !g.granted[c] {
			return false, nil
		}
	}
	return true, nil
}

// RequestAll reports the provisioned decision for each capability.
func (g *StaticGate) RequestAll(_ context.Context, caps ...Capability) (map[Capability]Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[Capability]Decision, len(caps))
	for _, c := range caps {
		if g.granted[c] {
			out[c] = DecisionGranted
		} else {
			out[c] = DecisionDenied
		}
	}
	return out, nil
}
