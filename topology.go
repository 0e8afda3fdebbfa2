package main

import (
	"net"
	"sync"
)

type ifSet map[int]struct{}

func (s ifSet) add(ifindex int)      { s[ifindex] = struct{}{} }
func (s ifSet) has(ifindex int) bool { _, ok := s[ifindex]; return ok }

// TopologyManager owns the per-message-type forwarding maps, the set of
// upstreams whose RAs need source-address substitution, and the cached
// downlink link-local addresses. Control operations arrive on a different
// goroutine than packet dispatch, so all state is guarded by the mutex.
type TopologyManager struct {
	mu sync.RWMutex

	rs map[int]ifSet
	ra map[int]ifSet
	ns map[int]ifSet
	na map[int]ifSet

	modifyRouterAddress ifSet
	downlinkLinkLocal   map[int]net.IP

	// linkLocal resolves an interface's link-local address; replaceable in
	// tests. nil result means no address was found.
	linkLocal func(ifindex int) net.IP
}

func NewTopologyManager() *TopologyManager {
	return &TopologyManager{
		rs:                  make(map[int]ifSet),
		ra:                  make(map[int]ifSet),
		ns:                  make(map[int]ifSet),
		na:                  make(map[int]ifSet),
		modifyRouterAddress: make(ifSet),
		downlinkLinkLocal:   make(map[int]net.IP),
		linkLocal:           interfaceLinkLocal,
	}
}

func addRoute(m map[int]ifSet, from, to int) {
	set := m[from]
	if set == nil {
		set = make(ifSet)
		m[from] = set
	}
	set.add(to)
}

func delRoute(m map[int]ifSet, from, to int) {
	set := m[from]
	if set == nil {
		return
	}
	delete(set, to)
	if len(set) == 0 {
		delete(m, from)
	}
}

// StartRSRAProxy registers RS forwarding from downstream to upstream and RA
// forwarding from upstream to downstream. With modifyRouterAddress set, RAs
// proxied from this upstream have their source address replaced with the
// downstream's own link-local address.
func (t *TopologyManager) StartRSRAProxy(upstream, downstream int, modifyRouterAddress bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	addRoute(t.rs, downstream, upstream)
	addRoute(t.ra, upstream, downstream)
	if modifyRouterAddress {
		t.modifyRouterAddress.add(upstream)
	}
	t.cacheLinkLocalLocked(downstream)
}

// StartNSNAProxy registers NS/NA forwarding between the pair in both
// directions; either side may initiate address resolution.
func (t *TopologyManager) StartNSNAProxy(ifA, ifB int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	addRoute(t.ns, ifA, ifB)
	addRoute(t.ns, ifB, ifA)
	addRoute(t.na, ifA, ifB)
	addRoute(t.na, ifB, ifA)
}

// StopProxy removes every forwarding entry between the pair. Stopping a pair
// that was never started is a no-op.
func (t *TopologyManager) StopProxy(ifA, ifB int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range []map[int]ifSet{t.rs, t.ra, t.ns, t.na} {
		delRoute(m, ifA, ifB)
		delRoute(m, ifB, ifA)
	}
	// Keep the modify flag while the interface still serves as upstream for
	// another pair.
	for _, i := range []int{ifA, ifB} {
		if _, stillUpstream := t.ra[i]; !stillUpstream {
			delete(t.modifyRouterAddress, i)
		}
		delete(t.downlinkLinkLocal, i)
	}
}

// InterfacesFor returns the interfaces a message of the given type received
// on ifindex must be replayed on. Empty for unregistered interfaces.
func (t *TopologyManager) InterfacesFor(typ uint8, ifindex int) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var m map[int]ifSet
	switch typ {
	case typeRouterSolicit:
		m = t.rs
	case typeRouterAdvert:
		m = t.ra
	case typeNeighborSolicit:
		m = t.ns
	case typeNeighborAdvert:
		m = t.na
	default:
		llog.Error("InterfacesFor called with non-ND type %d", typ)
		return nil
	}

	set := m[ifindex]
	if len(set) == 0 {
		return nil
	}
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	return out
}

// IsGuestInterface reports whether the interface takes part in NS proxying.
func (t *TopologyManager) IsGuestInterface(ifindex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ns[ifindex]) > 0
}

// IsRouterInterface reports whether RAs received on the interface are proxied.
func (t *TopologyManager) IsRouterInterface(ifindex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ra[ifindex]) > 0
}

// IsDownlinkInterface reports whether the interface is the guest-facing side
// of an RS/RA pair.
func (t *TopologyManager) IsDownlinkInterface(ifindex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rs[ifindex]) > 0
}

// ModifyRouterAddress reports whether RAs received on the upstream need their
// source address substituted.
func (t *TopologyManager) ModifyRouterAddress(ifindex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.modifyRouterAddress.has(ifindex)
}

// DownlinkLinkLocal returns the cached link-local address of a registered
// downlink, or nil.
func (t *TopologyManager) DownlinkLinkLocal(ifindex int) net.IP {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.downlinkLinkLocal[ifindex]
}

// cacheLinkLocalLocked looks up the downlink's link-local address once at
// registration. A downlink may not have an address configured yet; that is a
// warning, not a failure.
func (t *TopologyManager) cacheLinkLocalLocked(ifindex int) {
	if _, ok := t.downlinkLinkLocal[ifindex]; ok {
		return
	}
	ll := t.linkLocal(ifindex)
	if ll == nil {
		llog.Warning("No link local address found on ifindex %d", ifindex)
		return
	}
	t.downlinkLinkLocal[ifindex] = ll
}
