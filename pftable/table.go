// Package pftable mirrors the membership of one named pf address table
// and keeps it synchronized with the kernel. Every mutation recomputes
// the full desired membership and pushes it with a single atomic
// replace call, there are no incremental kernel edits.
package pftable

import (
	"fmt"
	"sort"
	"sync"
)

const pfDevicePath = "/dev/pf"

// initialAddrCapacity is the record capacity of the first fetch pass.
const initialAddrCapacity = 20

// channel is the kernel side of a table. getAddrs copies up to len(buf)
// records and reports the table's true size; setAddrs atomically
// replaces the whole table and reports the kernel delta.
type channel interface {
	getAddrs(buf []pfrAddr) (int, error)
	setAddrs(addrs []pfrAddr) (delta, error)
	Close() error
}

// delta is the kernel-reported result of a replace call.
type delta struct {
	deleted int
	added   int
	changed int
}

// Table is the in-memory mirror of one kernel table. All operations are
// serialized by the embedded lock, kernel call included, so no two
// replace calls for the same table ever run concurrently and List never
// observes a half-applied mutation.
type Table struct {
	sync.Mutex

	name  string
	dev   channel
	addrs map[Addr]struct{}
}

// Open opens the packet filter device and loads the current membership
// of the named table. The table must already exist in the loaded pf
// configuration.
func Open(name string) (*Table, error) {
	if len(name) >= pfTableNameSize {
		return nil, fmt.Errorf("table name too long: %q", name)
	}
	dev, err := openDevice(name)
	if err != nil {
		return nil, err
	}
	return openWith(dev, name)
}

func openWith(dev channel, name string) (*Table, error) {
	t := &Table{
		name:  name,
		dev:   dev,
		addrs: make(map[Addr]struct{}),
	}

	recs, err := fetchAddrs(dev)
	if err != nil {
		dev.Close()
		return nil, err
	}
	for i := range recs {
		a, err := fromWire(&recs[i])
		if err != nil {
			dev.Close()
			return nil, err
		}
		t.addrs[a] = struct{}{}
	}
	return t, nil
}

// fetchAddrs reads the whole table. If the kernel reports more entries
// than the buffer held, the read is reissued with the reported size
// until it fits. The kernel could in principle keep growing the table
// between passes, this loop follows it.
func fetchAddrs(dev channel) ([]pfrAddr, error) {
	size := initialAddrCapacity
	for {
		buf := make([]pfrAddr, size)
		n, err := dev.getAddrs(buf)
		if err != nil {
			return nil, err
		}
		if n <= len(buf) {
			return buf[:n], nil
		}
		size = n
	}
}

// Name returns the kernel table name this mirror is bound to.
func (t *Table) Name() string {
	return t.name
}

// Len returns how many entries the mirror holds.
func (t *Table) Len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.addrs)
}

// Add parses addr and inserts it into the table, returning how many
// entries the kernel added. Adding a present entry is a no-op reported
// as 0, without a kernel call.
func (t *Table) Add(addr string) (int, error) {
	a, err := ParseAddr(addr)
	if err != nil {
		return 0, err
	}

	t.Lock()
	defer t.Unlock()

	if _, found := t.addrs[a]; found {
		return 0, nil
	}
	t.addrs[a] = struct{}{}
	d, err := t.replaceAll()
	if err != nil {
		delete(t.addrs, a)
		return 0, err
	}
	return d.added, nil
}

// Remove parses addr and deletes it from the table, returning how many
// entries the kernel deleted. Removing an absent entry is a no-op
// reported as 0, without a kernel call.
func (t *Table) Remove(addr string) (int, error) {
	a, err := ParseAddr(addr)
	if err != nil {
		return 0, err
	}

	t.Lock()
	defer t.Unlock()

	if _, found := t.addrs[a]; found == false {
		return 0, nil
	}
	delete(t.addrs, a)
	d, err := t.replaceAll()
	if err != nil {
		t.addrs[a] = struct{}{}
		return 0, err
	}
	return d.deleted, nil
}

// Clear empties the table, returning how many entries the kernel
// deleted.
func (t *Table) Clear() (int, error) {
	t.Lock()
	defer t.Unlock()

	prev := t.addrs
	t.addrs = make(map[Addr]struct{})
	d, err := t.replaceAll()
	if err != nil {
		t.addrs = prev
		return 0, err
	}
	return d.deleted, nil
}

// List returns the textual form of every entry, ordered by prefix with
// negated twins last.
func (t *Table) List() []string {
	t.Lock()
	defer t.Unlock()

	addrs := make([]Addr, 0, len(t.addrs))
	for a := range t.addrs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return compareAddrs(addrs[i], addrs[j]) < 0
	})

	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}

// replaceAll pushes the whole mirror to the kernel as one replace call.
// Callers must hold the lock. On failure the caller rolls the mirror
// back, memory and kernel never diverge.
func (t *Table) replaceAll() (delta, error) {
	recs := make([]pfrAddr, 0, len(t.addrs))
	for a := range t.addrs {
		recs = append(recs, a.toWire())
	}
	return t.dev.setAddrs(recs)
}

// Close releases the packet filter device handle.
func (t *Table) Close() error {
	return t.dev.Close()
}
