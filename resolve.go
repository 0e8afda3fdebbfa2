package main

import (
	"bytes"
	"net"
	"time"

	"github.com/vishvananda/netlink"
)

var (
	allNodesIP = net.IP{0xFF, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01} // ff02::1
	allRoutersIP = net.IP{0xFF, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02} // ff02::2
	// ff02::1:ff00:0/104, the solicited-node prefix (first 13 bytes fixed).
	solicitedNodePrefix = net.IP{0xFF, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01, 0xFF, 0x00, 0x00, 0x00}

	allNodesMAC   = net.HardwareAddr{0x33, 0x33, 0x00, 0x00, 0x00, 0x01}
	allRoutersMAC = net.HardwareAddr{0x33, 0x33, 0x00, 0x00, 0x00, 0x02}
)

const neighborQueryTimeout = 2 * time.Second

// Resolver maps the destination IPv6 address of an outbound frame to the
// link-layer address to put in the sockaddr. Well-known multicast mappings
// are computed directly; anything else goes through a kernel neighbor-table
// dump over rtnetlink.
type Resolver struct {
	// neighbors dumps the kernel's IPv6 neighbor table; replaceable in tests.
	neighbors func() ([]netlink.Neigh, error)

	handle *netlink.Handle
}

func NewResolver() (*Resolver, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, err
	}
	// An unbounded neighbor dump would stall the whole dispatch loop; treat a
	// slow kernel as "unresolved" instead.
	if err := h.SetSocketTimeout(neighborQueryTimeout); err != nil {
		h.Close()
		return nil, err
	}

	r := &Resolver{handle: h}
	r.neighbors = func() ([]netlink.Neigh, error) {
		return r.handle.NeighList(0, netlink.FAMILY_V6)
	}
	return r, nil
}

func (r *Resolver) Close() {
	if r.handle != nil {
		r.handle.Close()
	}
}

// Resolve returns the destination MAC for the given IPv6 destination address,
// or the all-zero MAC when no neighbor entry exists. The caller decides the
// fallback policy for the unresolved case.
func (r *Resolver) Resolve(ip net.IP) net.HardwareAddr {
	ip = ip.To16()
	if ip == nil {
		return zeroMAC
	}
	if ip.Equal(allNodesIP) {
		return allNodesMAC
	}
	if ip.Equal(allRoutersIP) {
		return allRoutersMAC
	}
	if bytes.Equal(ip[:13], solicitedNodePrefix[:13]) {
		// RFC 4291: 33:33:ff concatenated with the low 3 bytes.
		return net.HardwareAddr{0x33, 0x33, 0xFF, ip[13], ip[14], ip[15]}
	}

	neighs, err := r.neighbors()
	if err != nil {
		llog.Warning("Neighbor table query for %s failed: %s", ip, err)
		return zeroMAC
	}
	for _, n := range neighs {
		if len(n.HardwareAddr) == 6 && ip.Equal(n.IP) {
			return n.HardwareAddr
		}
	}
	return zeroMAC
}

// interfaceMAC returns the interface's own MAC, used as the rewritten
// link-layer address on frames sent out of that interface.
func interfaceMAC(ifindex int) (net.HardwareAddr, error) {
	netif, err := net.InterfaceByIndex(ifindex)
	if err != nil {
		return nil, err
	}
	return netif.HardwareAddr, nil
}

// interfaceLinkLocal returns the interface's link-local address, or nil.
func interfaceLinkLocal(ifindex int) net.IP {
	link, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		llog.Warning("LinkByIndex(%d) failed: %s", ifindex, err)
		return nil
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V6)
	if err != nil {
		llog.Warning("AddrList(%d) failed: %s", ifindex, err)
		return nil
	}
	for _, addr := range addrs {
		if addr.IP.IsLinkLocalUnicast() {
			return copyIP(addr.IP)
		}
	}
	return nil
}
