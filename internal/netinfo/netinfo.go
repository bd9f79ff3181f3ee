// Package netinfo enumerates the host's network addresses for the
// startup banner, so operators know where wildcard-bound servers are
// reachable.
package netinfo

import "net"

// ActiveIPs returns the host's non-loopback IPv4 addresses. Interfaces
// that are down are skipped. Enumeration failures yield an empty list;
// the banner is informational only.
func ActiveIPs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch a := addr.(type) {
			case *net.IPNet:
				ip = a.IP
			case *net.IPAddr:
				ip = a.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				ips = append(ips, v4.String())
			}
		}
	}
	return ips
}
