package peer

import (
	"net"
	"strings"
)

// tunnelNames are interface name fragments of VPN and tunnel adapters.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Tailscale and WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// behindRestrictiveNetwork guesses whether direct peer paths are unlikely:
// an active tunnel interface or an address inside the CGNAT range.
func behindRestrictiveNetwork() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && cgnat.Contains(ipnet.IP) {
				return true
			}
		}
	}
	return false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, fragment := range tunnelNames {
		if strings.Contains(name, fragment) {
			return true
		}
	}
	return false
}
