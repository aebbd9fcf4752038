package pftable

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// Addr is one entry of a pf table: an IP network plus the per-entry
// negation flag ("!" in pfctl syntax). Two entries differing only in
// negation are distinct table members.
type Addr struct {
	Net netip.Prefix
	Not bool
}

// ParseAddr parses the textual form of a table entry: an IP address or a
// CIDR network, optionally preceded by "!" to mark it negated. A bare
// address gets the full-length prefix of its family; address bits beyond
// the prefix are masked off.
func ParseAddr(s string) (Addr, error) {
	a := Addr{}
	text := strings.TrimSpace(s)
	if strings.HasPrefix(text, "!") {
		a.Not = true
		text = strings.TrimSpace(strings.TrimLeft(text, "!"))
	}

	if strings.Contains(text, "/") {
		p, err := netip.ParsePrefix(text)
		if err != nil {
			return Addr{}, InvalidAddressError{Text: s}
		}
		a.Net = p.Masked()
		return a, nil
	}

	ip, err := netip.ParseAddr(text)
	if err != nil || ip.Zone() != "" {
		return Addr{}, InvalidAddressError{Text: s}
	}
	a.Net = netip.PrefixFrom(ip, ip.BitLen())
	return a, nil
}

// String prints the entry the way pfctl prints it: the network address,
// "/len" only when the prefix is not full-width, "! " when negated.
func (a Addr) String() string {
	s := a.Net.Addr().String()
	if a.Net.Bits() != a.Net.Addr().BitLen() {
		s = fmt.Sprintf("%s/%d", s, a.Net.Bits())
	}
	if a.Not {
		s = "! " + s
	}
	return s
}

// compareAddrs orders entries by prefix, negated twin last.
func compareAddrs(a, b Addr) int {
	if c := netipx.ComparePrefix(a.Net, b.Net); c != 0 {
		return c
	}
	switch {
	case a.Not == b.Not:
		return 0
	case b.Not:
		return -1
	}
	return 1
}
