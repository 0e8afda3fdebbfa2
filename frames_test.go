package main

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	testRouterMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x0a, 0x01}
	testGuestMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x0b, 0x02}
	testProxyMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x0c, 0x03}

	testRouterLL = net.ParseIP("fe80::1")
	testGuestIP  = net.ParseIP("2001:db8::5")
	testPrefix   = net.ParseIP("2001:db8::")
)

func buildFrame(t *testing.T, src, dst net.IP, icmpType uint8, msg gopacket.SerializableLayer) []byte {
	t.Helper()

	ip6 := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   255,
		SrcIP:      src,
		DstIP:      dst,
	}
	icmp6 := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(icmpType, 0),
	}
	icmp6.SetNetworkLayerForChecksum(ip6)

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip6, icmp6, msg))
	return buf.Bytes()
}

func prefixInfoData(prefix net.IP, prefixLen int, onLink bool) []byte {
	data := make([]byte, 30)
	data[0] = byte(prefixLen)
	data[1] = 0x40 // autonomous
	if onLink {
		data[1] |= prefixFlagOnLink
	}
	copy(data[14:30], prefix.To16())
	return data
}

func buildRouterAdvert(t *testing.T, src net.IP, srcMAC net.HardwareAddr, prefix net.IP, prefixLen int, onLink bool) []byte {
	t.Helper()

	var opts []layers.ICMPv6Option
	if srcMAC != nil {
		opts = append(opts, layers.ICMPv6Option{Type: layers.ICMPv6OptSourceAddress, Data: srcMAC})
	}
	if prefix != nil {
		opts = append(opts, layers.ICMPv6Option{Type: layers.ICMPv6OptPrefixInfo, Data: prefixInfoData(prefix, prefixLen, onLink)})
	}
	ra := &layers.ICMPv6RouterAdvertisement{
		HopLimit:       64,
		RouterLifetime: 1800,
		Options:        opts,
	}
	return buildFrame(t, src, allNodesIP, typeRouterAdvert, ra)
}

func rsLayer(srcMAC net.HardwareAddr) *layers.ICMPv6RouterSolicitation {
	return &layers.ICMPv6RouterSolicitation{
		Options: []layers.ICMPv6Option{
			{Type: layers.ICMPv6OptSourceAddress, Data: srcMAC},
		},
	}
}

func buildRouterSolicit(t *testing.T, src net.IP, srcMAC net.HardwareAddr) []byte {
	t.Helper()
	return buildFrame(t, src, allRoutersIP, typeRouterSolicit, rsLayer(srcMAC))
}

func buildNeighborSolicit(t *testing.T, src, dst, target net.IP, srcMAC net.HardwareAddr) []byte {
	t.Helper()

	ns := &layers.ICMPv6NeighborSolicitation{
		TargetAddress: target,
		Options: []layers.ICMPv6Option{
			{Type: layers.ICMPv6OptSourceAddress, Data: srcMAC},
		},
	}
	return buildFrame(t, src, dst, typeNeighborSolicit, ns)
}

func buildNeighborAdvert(t *testing.T, src, dst, target net.IP, targetMAC net.HardwareAddr) []byte {
	t.Helper()

	na := &layers.ICMPv6NeighborAdvertisement{
		Flags:         0x20, // override
		TargetAddress: target,
		Options: []layers.ICMPv6Option{
			{Type: layers.ICMPv6OptTargetAddress, Data: targetMAC},
		},
	}
	return buildFrame(t, src, dst, typeNeighborAdvert, na)
}
