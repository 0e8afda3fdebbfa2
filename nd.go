package main

import (
	"encoding/binary"
	"errors"
	"net"
)

// ICMPv6 neighbor discovery message types (RFC 4861).
const (
	typeRouterSolicit   = 133
	typeRouterAdvert    = 134
	typeNeighborSolicit = 135
	typeNeighborAdvert  = 136
)

// ND option types.
const (
	optSourceLinkLayerAddr = 1
	optTargetLinkLayerAddr = 2
	optPrefixInfo          = 3
)

const (
	ipv6HeaderLen   = 40
	icmpv6HeaderLen = 8
	protoICMPv6     = 0x3a

	// Offsets within a cooked AF_PACKET frame (IPv6 header at offset 0).
	offPayloadLen = 4
	offNextHeader = 6
	offSrcIP      = 8
	offDstIP      = 24
	offICMPType   = ipv6HeaderLen
	offChecksum   = ipv6HeaderLen + 2
	offRAFlags    = ipv6HeaderLen + 5
	offTargetIP   = ipv6HeaderLen + 8

	// RFC 4389 "proxied" bit in the RA flags byte.
	raFlagProxy = 0x04
	// On-link flag in the prefix information option flags byte.
	prefixFlagOnLink = 0x80
)

var (
	errFrameTooShort      = errors.New("frame too short for IPv6+ICMPv6 headers")
	errNotICMPv6          = errors.New("next header is not ICMPv6")
	errPayloadLenMismatch = errors.New("payload length field disagrees with frame length")
	errNotNDMessage       = errors.New("not a neighbor discovery message")
)

// ndHeaderLen returns the fixed ICMPv6 header size of the given ND message
// type; options start right after it.
func ndHeaderLen(typ uint8) int {
	switch typ {
	case typeRouterSolicit:
		return 8
	case typeRouterAdvert:
		return 16
	case typeNeighborSolicit, typeNeighborAdvert:
		return 24
	}
	return 0
}

// ndFrame is a validated view over one raw ND frame. It does not own the
// bytes; the slice must stay alive while the view is used.
type ndFrame struct {
	data []byte
	typ  uint8
}

func parseNDFrame(data []byte) (ndFrame, error) {
	var f ndFrame

	if len(data) < ipv6HeaderLen+icmpv6HeaderLen {
		return f, errFrameTooShort
	}
	if data[offNextHeader] != protoICMPv6 {
		return f, errNotICMPv6
	}
	if int(binary.BigEndian.Uint16(data[offPayloadLen:])) != len(data)-ipv6HeaderLen {
		return f, errPayloadLenMismatch
	}
	typ := data[offICMPType]
	if typ < typeRouterSolicit || typ > typeNeighborAdvert {
		return f, errNotNDMessage
	}
	if len(data) < ipv6HeaderLen+ndHeaderLen(typ) {
		return f, errFrameTooShort
	}

	f.data = data
	f.typ = typ
	return f, nil
}

func (f ndFrame) srcIP() net.IP { return net.IP(f.data[offSrcIP : offSrcIP+16]) }
func (f ndFrame) dstIP() net.IP { return net.IP(f.data[offDstIP : offDstIP+16]) }

// targetIP is only meaningful for NS/NA frames.
func (f ndFrame) targetIP() net.IP { return net.IP(f.data[offTargetIP : offTargetIP+16]) }

// options returns the variable-length option area of the frame.
func (f ndFrame) options() []byte {
	return f.data[ipv6HeaderLen+ndHeaderLen(f.typ):]
}

// findOption walks the ND option area and returns the offset of the first
// option of the wanted type, or -1. A zero length field or an option running
// past the end of the buffer terminates the walk; the malformed tail is
// treated as absent rather than read out of bounds.
func findOption(opts []byte, want uint8) int {
	for off := 0; off+2 <= len(opts); {
		olen := int(opts[off+1]) * 8
		if olen == 0 || off+olen > len(opts) {
			return -1
		}
		if opts[off] == want {
			return off
		}
		off += olen
	}
	return -1
}

// prefixInfo extracts the advertised prefix from an RA's prefix information
// option, if present.
func (f ndFrame) prefixInfo() (net.IP, int, bool) {
	if f.typ != typeRouterAdvert {
		return nil, 0, false
	}
	opts := f.options()
	off := findOption(opts, optPrefixInfo)
	if off < 0 || opts[off+1] != 4 || off+32 > len(opts) {
		return nil, 0, false
	}
	plen := int(opts[off+2])
	prefix := make(net.IP, 16)
	copy(prefix, opts[off+16:off+32])
	return prefix, plen, true
}

// icmpv6Checksum computes the ICMPv6 checksum of the frame over the IPv6
// pseudo header plus the ICMPv6 payload. The caller must zero the stored
// checksum field first when recomputing.
func icmpv6Checksum(data []byte) uint16 {
	var sum uint32

	add16 := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(b[i])<<8 | uint32(b[i+1])
		}
		if len(b)%2 == 1 {
			sum += uint32(b[len(b)-1]) << 8
		}
	}

	// Pseudo header: source, destination, upper-layer length, next header.
	add16(data[offSrcIP : offSrcIP+16])
	add16(data[offDstIP : offDstIP+16])
	ulen := uint32(len(data) - ipv6HeaderLen)
	sum += ulen >> 16
	sum += ulen & 0xffff
	sum += protoICMPv6

	add16(data[ipv6HeaderLen:])

	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}
