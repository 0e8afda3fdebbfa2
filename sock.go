package main

import (
	"fmt"
	"net"
	"unsafe"

	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// PacketSocket is the raw-socket gateway. One cooked AF_PACKET socket collects
// ND frames from every interface; the kernel-side BPF classifier is the sole
// admission control, so everything read from it is ICMPv6 RS/RA/NS/NA. The
// receiving interface comes from the sockaddr_ll metadata, and sends carry an
// explicit target ifindex plus destination MAC.
type PacketSocket struct {
	fd int
}

func NewPacketSocket() (*PacketSocket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM, int(htons(unix.ETH_P_IPV6)))
	if err != nil {
		return nil, fmt.Errorf("socket(AF_PACKET) failed: %s", err)
	}

	if err := applyBPF(fd, bpfND()); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("SO_ATTACH_FILTER failed: %s", err)
	}

	return &PacketSocket{fd: fd}, nil
}

// WaitReadable blocks until the socket has a frame to read, or the timeout
// (milliseconds, -1 for none) expires. Returns false on timeout.
func (s *PacketSocket) WaitReadable(timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

// ReadFrame reads one frame into buf and returns the frame length and the
// ifindex it was received on. ENETDOWN is a benign race with an interface
// going down and is reported as a zero-length read.
func (s *PacketSocket) ReadFrame(buf []byte) (int, int, error) {
	n, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err == unix.ENETDOWN {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	sll, ok := from.(*unix.SockaddrLinklayer)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected sockaddr %T from recvfrom", from)
	}
	return n, sll.Ifindex, nil
}

// WriteFrame sends a frame out the given interface to the given MAC.
func (s *PacketSocket) WriteFrame(ifindex int, dst net.HardwareAddr, frame []byte) error {
	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_IPV6),
		Ifindex:  ifindex,
		Halen:    uint8(len(dst)),
	}
	copy(sll.Addr[:], dst)
	return unix.Sendto(s.fd, frame, 0, sll)
}

func (s *PacketSocket) Close() error {
	return unix.Close(s.fd)
}

// bpfND admits only ICMPv6 neighbor discovery frames. Offsets are for the
// cooked AF_PACKET view: the IPv6 header starts at 0.
func bpfND() []bpf.RawInstruction {
	insn, _ := bpf.Assemble([]bpf.Instruction{
		bpf.LoadAbsolute{Off: 6, Size: 1},   // Load IPv6 Next Header
		bpf.JumpIf{Val: 0x3a, SkipFalse: 6}, // Next Header == 0x3a (ICMPv6)
		bpf.LoadAbsolute{Off: 40, Size: 1},  // Load ICMPv6 Type
		bpf.JumpIf{Val: 133, SkipTrue: 3},   // Type == 133 (Router Solicitation)
		bpf.JumpIf{Val: 134, SkipTrue: 2},   // Type == 134 (Router Advertisement)
		bpf.JumpIf{Val: 135, SkipTrue: 1},   // Type == 135 (Neighbor Solicitation)
		bpf.JumpIf{Val: 136, SkipFalse: 1},  // Type == 136 (Neighbor Advertisement)
		bpf.RetConstant{Val: 65535},
		bpf.RetConstant{Val: 0},
	})
	return insn
}

func applyBPF(fd int, is []bpf.RawInstruction) error {
	// from: https://riyazali.net/posts/berkeley-packet-filter-in-golang/
	program := unix.SockFprog{
		Len:    uint16(len(is)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&is[0])),
	}

	return unix.SetsockoptSockFprog(fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, &program)
}
