package main

import (
	"context"
	"net"
)

// GuestDiscoveryFunc is invoked when a guest's global/unique-local address is
// observed in proxied NS/NA traffic.
type GuestDiscoveryFunc func(ifindex int, addr net.IP)

// RouterDiscoveryFunc is invoked when a router's advertised prefix is
// observed in proxied RA traffic.
type RouterDiscoveryFunc func(ifindex int, prefix net.IP, prefixLen int)

type frameWriter interface {
	WriteFrame(ifindex int, dst net.HardwareAddr, frame []byte) error
}

type macResolver interface {
	Resolve(ip net.IP) net.HardwareAddr
}

// Proxy is the ND proxy engine: one raw socket in, per-interface fan-out back
// through the same socket. Frames are processed one at a time to completion,
// so per-interface ordering is preserved.
type Proxy struct {
	topo     *TopologyManager
	sock     *PacketSocket
	writer   frameWriter
	resolver macResolver

	ifaceMAC  func(ifindex int) (net.HardwareAddr, error)
	linkLocal func(ifindex int) net.IP

	// Drop frames with an unresolvable unicast destination instead of
	// broadcasting them toward the uplink.
	dropUnresolvedUplink bool

	onGuestDiscovery  GuestDiscoveryFunc
	onRouterDiscovery RouterDiscoveryFunc
}

func NewProxy(dropUnresolvedUplink bool) (*Proxy, error) {
	sock, err := NewPacketSocket()
	if err != nil {
		return nil, err
	}
	resolver, err := NewResolver()
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	return &Proxy{
		topo:                 NewTopologyManager(),
		sock:                 sock,
		writer:               sock,
		resolver:             resolver,
		ifaceMAC:             interfaceMAC,
		linkLocal:            interfaceLinkLocal,
		dropUnresolvedUplink: dropUnresolvedUplink,
	}, nil
}

func (p *Proxy) SetGuestDiscoveryHandler(f GuestDiscoveryFunc)   { p.onGuestDiscovery = f }
func (p *Proxy) SetRouterDiscoveryHandler(f RouterDiscoveryFunc) { p.onRouterDiscovery = f }

// StartRSRAProxy registers an upstream/downstream RS/RA pair and nudges the
// upstream router with a solicitation so the guest does not have to wait for
// the next periodic advertisement.
func (p *Proxy) StartRSRAProxy(upstream, downstream int, modifyRouterAddress bool) {
	p.topo.StartRSRAProxy(upstream, downstream, modifyRouterAddress)
	p.solicitRouter(upstream)
}

func (p *Proxy) StartNSNAProxy(ifA, ifB int) {
	p.topo.StartNSNAProxy(ifA, ifB)
}

func (p *Proxy) StopProxy(ifA, ifB int) {
	p.topo.StopProxy(ifA, ifB)
}

func (p *Proxy) solicitRouter(upstream int) {
	mac, err := p.ifaceMAC(upstream)
	if err != nil {
		llog.Debug("No MAC for ifindex %d, skipping router solicitation: %s", upstream, err)
		return
	}
	rs, err := makeRouterSolicitation(p.linkLocal(upstream), mac)
	if err != nil {
		llog.Debug("%s", err)
		return
	}
	if err := p.writer.WriteFrame(upstream, allRoutersMAC, rs); err != nil {
		llog.Debug("Router solicitation on ifindex %d failed: %s", upstream, err)
	}
}

// Run reads and dispatches frames until the context is canceled.
func (p *Proxy) Run(ctx context.Context) error {
	var buf [2048]byte

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		readable, err := p.sock.WaitReadable(500)
		if err != nil {
			return err
		}
		if !readable {
			continue
		}

		n, ifindex, err := p.sock.ReadFrame(buf[:])
		if err != nil {
			llog.Warning("Raw socket read failed: %s", err)
			continue
		}
		if n > 0 {
			p.processFrame(ifindex, buf[:n])
		}
	}
}

func (p *Proxy) processFrame(ifindex int, data []byte) {
	f, err := parseNDFrame(data)
	if err != nil {
		switch err {
		case errNotICMPv6, errNotNDMessage:
			// The BPF filter admits only ND frames; seeing one of these
			// means the filter and the parser disagree.
			llog.Error("Frame on ifindex %d passed the ND filter but did not parse: %s", ifindex, err)
		default:
			llog.Debug("Dropping malformed ND frame on ifindex %d: %s", ifindex, err)
		}
		return
	}

	p.notify(ifindex, f)

	// Frames addressed to a link-local address we substituted ourselves are
	// for the proxy, not for the far side.
	if ll := p.topo.DownlinkLinkLocal(ifindex); ll != nil && f.dstIP().Equal(ll) {
		return
	}

	fromGuest := p.topo.IsGuestInterface(ifindex)
	for _, target := range p.topo.InterfacesFor(f.typ, ifindex) {
		p.forward(f, ifindex, target, fromGuest)
	}
}

func (p *Proxy) forward(f ndFrame, recv, target int, fromGuest bool) {
	localMAC, err := p.ifaceMAC(target)
	if err != nil {
		llog.Debug("No MAC for target ifindex %d: %s", target, err)
		return
	}

	var newSrc net.IP
	if f.typ == typeRouterAdvert && p.topo.ModifyRouterAddress(recv) {
		// Upstream advertises an unreachable source; pose as the router
		// using the downlink's own link-local address.
		newSrc = p.topo.DownlinkLinkLocal(target)
	}

	out, err := translateNDFrame(f.data, localMAC, newSrc, nil)
	if err != nil {
		llog.Debug("Translation for ifindex %d failed: %s", target, err)
		return
	}

	dst := p.resolver.Resolve(net.IP(out[offDstIP : offDstIP+16]))
	if isZeroMAC(dst) {
		if p.dropUnresolvedUplink && !fromGuest {
			llog.Debug("No neighbor entry for %s, dropping frame bound for ifindex %d",
				net.IP(out[offDstIP:offDstIP+16]), target)
			return
		}
		dst = allNodesMAC
	}

	if err := p.writer.WriteFrame(target, dst, out); err != nil {
		// Only registered downlinks are worth complaining about; writes to
		// ephemeral interfaces fail all the time.
		if p.topo.IsDownlinkInterface(target) {
			llog.Warning("Failed to forward ND frame to ifindex %d: %s", target, err)
		}
	}
}

func (p *Proxy) notify(ifindex int, f ndFrame) {
	switch f.typ {
	case typeNeighborSolicit:
		if p.onGuestDiscovery != nil && f.srcIP().IsGlobalUnicast() && p.topo.IsGuestInterface(ifindex) {
			p.onGuestDiscovery(ifindex, copyIP(f.srcIP()))
		}
	case typeNeighborAdvert:
		if p.onGuestDiscovery != nil && f.targetIP().IsGlobalUnicast() && p.topo.IsGuestInterface(ifindex) {
			p.onGuestDiscovery(ifindex, copyIP(f.targetIP()))
		}
	case typeRouterAdvert:
		if p.onRouterDiscovery != nil && p.topo.IsRouterInterface(ifindex) {
			if prefix, plen, ok := f.prefixInfo(); ok {
				p.onRouterDiscovery(ifindex, prefix, plen)
			}
		}
	}
}
