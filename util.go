package main

import "net"

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

var zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

func copyIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}
