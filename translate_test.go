package main

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checksumValid(t *testing.T, frame []byte) bool {
	t.Helper()
	buf := make([]byte, len(frame))
	copy(buf, frame)
	stored := binary.BigEndian.Uint16(buf[offChecksum:])
	binary.BigEndian.PutUint16(buf[offChecksum:], 0)
	return stored == icmpv6Checksum(buf)
}

func TestTranslatePreservesLength(t *testing.T) {
	frames := map[string][]byte{
		"rs": buildRouterSolicit(t, testGuestIP, testGuestMAC),
		"ra": buildRouterAdvert(t, testRouterLL, testRouterMAC, testPrefix, 64, true),
		"ns": buildNeighborSolicit(t, testGuestIP, allNodesIP, testRouterLL, testGuestMAC),
		"na": buildNeighborAdvert(t, testGuestIP, testRouterLL, testGuestIP, testGuestMAC),
	}

	for name, frame := range frames {
		t.Run(name, func(t *testing.T) {
			out, err := translateNDFrame(frame, testProxyMAC, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, len(frame), len(out))
			assert.True(t, checksumValid(t, out))
		})
	}
}

func TestTranslateRewritesSourceLinkLayerAddr(t *testing.T) {
	for name, frame := range map[string][]byte{
		"rs": buildRouterSolicit(t, testGuestIP, testGuestMAC),
		"ra": buildRouterAdvert(t, testRouterLL, testRouterMAC, testPrefix, 64, true),
		"ns": buildNeighborSolicit(t, testGuestIP, allNodesIP, testRouterLL, testGuestMAC),
	} {
		t.Run(name, func(t *testing.T) {
			out, err := translateNDFrame(frame, testProxyMAC, nil, nil)
			require.NoError(t, err)

			f, err := parseNDFrame(out)
			require.NoError(t, err)
			opts := f.options()
			off := findOption(opts, optSourceLinkLayerAddr)
			require.GreaterOrEqual(t, off, 0)
			assert.Equal(t, testProxyMAC, net.HardwareAddr(opts[off+2:off+8]))
		})
	}
}

func TestTranslateRewritesTargetLinkLayerAddr(t *testing.T) {
	na := buildNeighborAdvert(t, testGuestIP, testRouterLL, testGuestIP, testGuestMAC)
	out, err := translateNDFrame(na, testProxyMAC, nil, nil)
	require.NoError(t, err)

	f, err := parseNDFrame(out)
	require.NoError(t, err)
	opts := f.options()
	off := findOption(opts, optTargetLinkLayerAddr)
	require.GreaterOrEqual(t, off, 0)
	assert.Equal(t, testProxyMAC, net.HardwareAddr(opts[off+2:off+8]))
}

func TestTranslateLeavesOtherOptionBytesUntouched(t *testing.T) {
	ra := buildRouterAdvert(t, testRouterLL, testRouterMAC, testPrefix, 64, true)
	out, err := translateNDFrame(ra, testProxyMAC, nil, nil)
	require.NoError(t, err)

	f, _ := parseNDFrame(ra)
	fOut, _ := parseNDFrame(out)
	opts, optsOut := f.options(), fOut.options()
	llaOff := findOption(opts, optSourceLinkLayerAddr)
	require.GreaterOrEqual(t, llaOff, 0)

	for i := range opts {
		if i >= llaOff+2 && i < llaOff+8 {
			continue // the rewritten MAC
		}
		assert.Equal(t, opts[i], optsOut[i], "option byte %d changed", i)
	}
}

func TestTranslateSetsProxyBit(t *testing.T) {
	ra := buildRouterAdvert(t, testRouterLL, testRouterMAC, testPrefix, 64, true)
	require.Zero(t, ra[offRAFlags]&raFlagProxy)

	once, err := translateNDFrame(ra, testProxyMAC, nil, nil)
	require.NoError(t, err)
	assert.NotZero(t, once[offRAFlags]&raFlagProxy)

	// Cascaded proxying keeps the bit set and the frame valid.
	twice, err := translateNDFrame(once, testProxyMAC, nil, nil)
	require.NoError(t, err)
	assert.NotZero(t, twice[offRAFlags]&raFlagProxy)
	assert.True(t, checksumValid(t, twice))
}

func TestTranslateSourceSubstitution(t *testing.T) {
	newSrc := net.ParseIP("fe80::aa")
	ra := buildRouterAdvert(t, testRouterLL, testRouterMAC, testPrefix, 64, true)

	out, err := translateNDFrame(ra, testProxyMAC, newSrc, nil)
	require.NoError(t, err)

	f, err := parseNDFrame(out)
	require.NoError(t, err)
	assert.True(t, f.srcIP().Equal(newSrc))
	assert.True(t, checksumValid(t, out))

	// The proxy is not on-link for the substituted source.
	opts := f.options()
	off := findOption(opts, optPrefixInfo)
	require.GreaterOrEqual(t, off, 0)
	assert.Zero(t, opts[off+3]&prefixFlagOnLink)
	assert.NotZero(t, opts[off+3]&0x40, "autonomous flag must survive")
}

func TestTranslateDestinationSubstitution(t *testing.T) {
	newDst := net.ParseIP("fe80::bb")
	ns := buildNeighborSolicit(t, testGuestIP, allNodesIP, testRouterLL, testGuestMAC)

	out, err := translateNDFrame(ns, testProxyMAC, nil, newDst)
	require.NoError(t, err)

	f, err := parseNDFrame(out)
	require.NoError(t, err)
	assert.True(t, f.dstIP().Equal(newDst))
	assert.True(t, checksumValid(t, out))
}

// An option claiming a length incompatible with a 6-byte MAC payload is left
// alone; the rest of the translation still happens.
func TestTranslateSkipsOversizedLinkLayerOption(t *testing.T) {
	frame := make([]byte, ipv6HeaderLen+24+16)
	frame[offNextHeader] = protoICMPv6
	binary.BigEndian.PutUint16(frame[offPayloadLen:], uint16(len(frame)-ipv6HeaderLen))
	frame[offICMPType] = typeNeighborSolicit
	copy(frame[offSrcIP:], testGuestIP.To16())
	copy(frame[offDstIP:], allNodesIP.To16())
	opts := frame[ipv6HeaderLen+24:]
	opts[0] = optSourceLinkLayerAddr
	opts[1] = 2 // 16 bytes, not a MAC-sized option
	copy(opts[2:8], testGuestMAC)

	out, err := translateNDFrame(frame, testProxyMAC, nil, nil)
	require.NoError(t, err)

	fOut, err := parseNDFrame(out)
	require.NoError(t, err)
	outOpts := fOut.options()
	assert.Equal(t, testGuestMAC, net.HardwareAddr(outOpts[2:8]), "oversized option must not be rewritten")
	assert.True(t, checksumValid(t, out))
}

func TestTranslateRejectsMalformedFrame(t *testing.T) {
	_, err := translateNDFrame(make([]byte, 16), testProxyMAC, nil, nil)
	assert.ErrorIs(t, err, errFrameTooShort)
}

func TestTranslateDoesNotModifyInput(t *testing.T) {
	ra := buildRouterAdvert(t, testRouterLL, testRouterMAC, testPrefix, 64, true)
	orig := make([]byte, len(ra))
	copy(orig, ra)

	_, err := translateNDFrame(ra, testProxyMAC, net.ParseIP("fe80::aa"), nil)
	require.NoError(t, err)
	assert.Equal(t, orig, ra)
}
