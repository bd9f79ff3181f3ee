package netinfo

import (
	"net"
	"strings"
	"testing"
)

func TestActiveIPs(t *testing.T) {
	ips := ActiveIPs()

	// The list may legitimately be empty on an isolated host; every
	// entry that is present must be a non-loopback IPv4 address.
	for _, s := range ips {
		ip := net.ParseIP(s)
		if ip == nil {
			t.Errorf("ActiveIPs() returned unparseable address %q", s)
			continue
		}
		if ip.To4() == nil {
			t.Errorf("ActiveIPs() returned non-IPv4 address %q", s)
		}
		if ip.IsLoopback() || strings.HasPrefix(s, "127.") {
			t.Errorf("ActiveIPs() returned loopback address %q", s)
		}
	}
}

func TestActiveIPs_NoDuplicateWork(t *testing.T) {
	first := ActiveIPs()
	second := ActiveIPs()

	if len(first) != len(second) {
		t.Errorf("ActiveIPs() unstable between calls: %v vs %v", first, second)
	}
}
