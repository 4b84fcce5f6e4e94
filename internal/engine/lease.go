package engine

import "sync"

// leaseRegistry provides per-plan single-flight: at most one executor drives
// a given plan at a time, while unrelated plans run concurrently. This is an
// in-process lease; cross-process exclusion is layered on top by the caller
// (see internal/filelock).
type leaseRegistry struct {
	mu   sync.Mutex
	held map[string]bool
}

func newLeaseRegistry() *leaseRegistry {
	return &leaseRegistry{held: make(map[string]bool)}
}

// acquire takes the lease for planID. Returns ErrPlanLeaseHeld if some other
// execution already holds it.
func (r *leaseRegistry) acquire(planID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held[planID] {
		return ErrPlanLeaseHeld
	}
	r.held[planID] = true
	return nil
}

// release returns the lease for planID. Releasing an unheld lease is a no-op.
func (r *leaseRegistry) release(planID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.held, planID)
}
