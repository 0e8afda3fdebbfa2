package main

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var unspecifiedIP = net.IP{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00} // ::

// makeRouterSolicitation builds a cooked (no ethernet header) RS frame to
// the all-routers address. With an unspecified source the source link-layer
// address option is omitted, per RFC 4861.
func makeRouterSolicitation(src net.IP, lladdr net.HardwareAddr) ([]byte, error) {
	if src == nil {
		src = unspecifiedIP
	}

	rs := &layers.ICMPv6RouterSolicitation{}
	if !src.Equal(unspecifiedIP) {
		rs.Options = []layers.ICMPv6Option{
			{Type: layers.ICMPv6OptSourceAddress, Data: lladdr},
		}
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	ip6 := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   255,
		SrcIP:      src,
		DstIP:      allRoutersIP,
	}
	icmpv6 := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypeRouterSolicitation, 0),
	}
	icmpv6.SetNetworkLayerForChecksum(ip6)

	if err := gopacket.SerializeLayers(buf, opts, ip6, icmpv6, rs); err != nil {
		return nil, fmt.Errorf("failed to serialize router solicitation: %s", err)
	}
	return buf.Bytes(), nil
}
