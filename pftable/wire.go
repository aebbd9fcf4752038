package pftable

import (
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"
)

// From /usr/include/net/pfvar.h
const (
	pfTableNameSize = 32
	ifNameSize      = 16
	pathMax         = 1024
	pfrkePlain      = 0
)

// pfrAddr mirrors struct pfr_addr, the kernel's table entry record. The
// layout is kernel ABI: field order, sizes and padding must match
// net/pfvar.h exactly. IPv4 addresses occupy the first 4 bytes of the
// address union.
type pfrAddr struct {
	Addr   [16]byte
	IfName [ifNameSize]byte
	States uint32
	Weight uint16
	Af     uint8
	Net    uint8
	Not    uint8
	Fback  uint8
	Type   uint8
	Pad    [7]byte
}

// pfrTable mirrors struct pfr_table, the descriptor naming the target
// table. Anchor and flags stay zero, the kernel rejects unknown names.
type pfrTable struct {
	Anchor [pathMax]byte
	Name   [pfTableNameSize]byte
	Flags  uint32
	Fback  uint8
	_      [3]byte
}

// pfiocTable mirrors struct pfioc_table, the payload of the DIOCR*
// table ioctls.
type pfiocTable struct {
	Table   pfrTable
	Buffer  unsafe.Pointer
	Esize   int32
	Size    int32
	Size2   int32
	Nadd    int32
	Ndel    int32
	Nchange int32
	Flags   int32
	Ticket  uint32
}

// ioctl encoding, from sys/ioccom.h.
const (
	iocparmMask = 0x1fff
	iocOut      = 0x40000000
	iocIn       = 0x80000000
	iocInOut    = iocIn | iocOut
)

func ioWR(group byte, num uint, size uintptr) uintptr {
	return uintptr(iocInOut) | (size&iocparmMask)<<16 | uintptr(group)<<8 | uintptr(num)
}

var (
	diocrSetAddrs = ioWR('D', 69, unsafe.Sizeof(pfiocTable{}))
	diocrGetAddrs = ioWR('D', 70, unsafe.Sizeof(pfiocTable{}))
)

// toWire encodes the entry as a kernel record. The statistics and
// interface fields are always zero on encode.
func (a Addr) toWire() pfrAddr {
	w := pfrAddr{
		Net:  uint8(a.Net.Bits()),
		Type: pfrkePlain,
	}
	ip := a.Net.Addr()
	if ip.Is4() {
		b := ip.As4()
		copy(w.Addr[:4], b[:])
		w.Af = unix.AF_INET
	} else {
		w.Addr = ip.As16()
		w.Af = unix.AF_INET6
	}
	if a.Not {
		w.Not = 1
	}
	return w
}

// fromWire decodes a kernel record. Only the address family, prefix
// length, negation flag and address bytes are honored, the statistics
// fields are ignored.
func fromWire(w *pfrAddr) (Addr, error) {
	var ip netip.Addr
	switch w.Af {
	case unix.AF_INET:
		var b [4]byte
		copy(b[:], w.Addr[:4])
		ip = netip.AddrFrom4(b)
	case unix.AF_INET6:
		ip = netip.AddrFrom16(w.Addr)
	default:
		return Addr{}, MalformedRecordError{Af: w.Af, Net: w.Net}
	}
	if int(w.Net) > ip.BitLen() {
		return Addr{}, MalformedRecordError{Af: w.Af, Net: w.Net}
	}
	return Addr{
		Net: netip.PrefixFrom(ip, int(w.Net)).Masked(),
		Not: w.Not != 0,
	}, nil
}
