package main

import (
	"encoding/binary"
	"net"
)

// translateNDFrame produces the proxied copy of a validated ND frame. The
// link-layer address option appropriate to the message type is rewritten to
// localMAC, newSrc/newDst (if non-nil) replace the IPv6 source/destination
// addresses, and the ICMPv6 checksum is recomputed. The output is always the
// same length as the input; the input is never modified.
func translateNDFrame(in []byte, localMAC net.HardwareAddr, newSrc, newDst net.IP) ([]byte, error) {
	out := make([]byte, len(in))
	copy(out, in)

	f, err := parseNDFrame(out)
	if err != nil {
		return nil, err
	}

	switch f.typ {
	case typeRouterSolicit, typeNeighborSolicit:
		rewriteLinkLayerOption(f.options(), optSourceLinkLayerAddr, localMAC)
	case typeRouterAdvert:
		out[offRAFlags] |= raFlagProxy
		rewriteLinkLayerOption(f.options(), optSourceLinkLayerAddr, localMAC)
	case typeNeighborAdvert:
		rewriteLinkLayerOption(f.options(), optTargetLinkLayerAddr, localMAC)
	}

	if src := newSrc.To16(); src != nil {
		copy(out[offSrcIP:offSrcIP+16], src)
		// The substituted source is the proxy itself, which is not on the
		// advertised link. Downstream must not take the prefix as on-link.
		if f.typ == typeRouterAdvert {
			clearOnLinkFlag(f.options())
		}
	}
	if dst := newDst.To16(); dst != nil {
		copy(out[offDstIP:offDstIP+16], dst)
	}

	binary.BigEndian.PutUint16(out[offChecksum:], 0)
	binary.BigEndian.PutUint16(out[offChecksum:], icmpv6Checksum(out))

	return out, nil
}

// rewriteLinkLayerOption overwrites the MAC carried in a source/target
// link-layer address option. An absent option, or one whose declared length
// does not match a 6-byte MAC payload, is left untouched.
func rewriteLinkLayerOption(opts []byte, typ uint8, mac net.HardwareAddr) {
	off := findOption(opts, typ)
	if off < 0 || opts[off+1] != 1 || len(mac) != 6 {
		return
	}
	copy(opts[off+2:off+8], mac)
}

func clearOnLinkFlag(opts []byte) {
	off := findOption(opts, optPrefixInfo)
	if off < 0 || opts[off+1] != 4 {
		return
	}
	opts[off+3] &^= prefixFlagOnLink
}
