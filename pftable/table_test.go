package pftable

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
)

// fakeDevice implements the kernel channel in memory, with call counters
// and error injection. setAddrs tracks reentrancy so tests can prove no
// two replace calls overlap.
type fakeDevice struct {
	mu       sync.Mutex
	records  map[pfrAddr]struct{}
	getCalls int
	setCalls int
	failSet  error

	inFlight int32
	overlaps int32
}

func newFakeDevice(addrs ...string) *fakeDevice {
	f := &fakeDevice{records: make(map[pfrAddr]struct{})}
	for _, s := range addrs {
		a, err := ParseAddr(s)
		if err != nil {
			panic(err)
		}
		f.records[a.toWire()] = struct{}{}
	}
	return f
}

func (f *fakeDevice) getAddrs(buf []pfrAddr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++

	i := 0
	for r := range f.records {
		if i >= len(buf) {
			break
		}
		buf[i] = r
		i++
	}
	return len(f.records), nil
}

func (f *fakeDevice) setAddrs(addrs []pfrAddr) (delta, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++

	if f.failSet != nil {
		err := f.failSet
		f.failSet = nil
		return delta{}, err
	}

	next := make(map[pfrAddr]struct{}, len(addrs))
	var d delta
	for _, r := range addrs {
		next[r] = struct{}{}
		if _, found := f.records[r]; found == false {
			d.added++
		}
	}
	for r := range f.records {
		if _, found := next[r]; found == false {
			d.deleted++
		}
	}
	f.records = next
	return d, nil
}

func (f *fakeDevice) Close() error {
	return nil
}

func openFakeTable(t *testing.T, dev *fakeDevice) *Table {
	t.Helper()
	tbl, err := openWith(dev, "test")
	if err != nil {
		t.Fatalf("opening table: %s", err)
	}
	return tbl
}

func TestOpenLoadsMembership(t *testing.T) {
	dev := newFakeDevice("192.0.2.1", "10.0.0.0/8", "! 2001:db8::/32")
	tbl := openFakeTable(t, dev)

	want := []string{"10.0.0.0/8", "192.0.2.1", "! 2001:db8::/32"}
	if got := tbl.List(); reflect.DeepEqual(got, want) == false {
		t.Errorf("List() = %v, expected %v", got, want)
	}
}

// A fetch against a table bigger than the initial buffer has to grow the
// buffer to the kernel-reported size and come back with the full set in
// exactly two passes.
func TestFetchGrowsBuffer(t *testing.T) {
	addrs := make([]string, 50)
	for i := range addrs {
		addrs[i] = fmt.Sprintf("10.0.%d.0/24", i)
	}
	dev := newFakeDevice(addrs...)

	tbl := openFakeTable(t, dev)

	if dev.getCalls != 2 {
		t.Errorf("fetch issued %d kernel calls, expected 2", dev.getCalls)
	}
	if tbl.Len() != 50 {
		t.Errorf("mirror holds %d entries, expected 50", tbl.Len())
	}
	got := tbl.List()
	seen := make(map[string]struct{}, len(got))
	for _, s := range got {
		seen[s] = struct{}{}
	}
	for _, s := range addrs {
		if _, found := seen[s]; found == false {
			t.Errorf("entry %s lost during the grown fetch", s)
		}
	}
}

func TestFetchSmallTableSinglePass(t *testing.T) {
	dev := newFakeDevice("192.0.2.1")
	openFakeTable(t, dev)

	if dev.getCalls != 1 {
		t.Errorf("fetch issued %d kernel calls, expected 1", dev.getCalls)
	}
}

func TestAddIdempotent(t *testing.T) {
	dev := newFakeDevice()
	tbl := openFakeTable(t, dev)

	n, err := tbl.Add("192.0.2.1")
	if err != nil {
		t.Fatalf("Add error: %s", err)
	}
	if n != 1 {
		t.Errorf("first Add returned %d, expected 1", n)
	}

	n, err = tbl.Add("192.0.2.1")
	if err != nil {
		t.Fatalf("Add error: %s", err)
	}
	if n != 0 {
		t.Errorf("second Add returned %d, expected 0", n)
	}
	if dev.setCalls != 1 {
		t.Errorf("second Add reached the kernel, %d replace calls", dev.setCalls)
	}
}

func TestRemoveAbsent(t *testing.T) {
	dev := newFakeDevice()
	tbl := openFakeTable(t, dev)

	n, err := tbl.Remove("192.0.2.1")
	if err != nil {
		t.Fatalf("Remove error: %s", err)
	}
	if n != 0 {
		t.Errorf("Remove of an absent entry returned %d, expected 0", n)
	}
	if dev.setCalls != 0 {
		t.Error("Remove of an absent entry reached the kernel")
	}
}

func TestAddListScenario(t *testing.T) {
	tbl := openFakeTable(t, newFakeDevice())

	if _, err := tbl.Add("192.0.2.1"); err != nil {
		t.Fatalf("Add error: %s", err)
	}
	want := []string{"192.0.2.1"}
	if got := tbl.List(); reflect.DeepEqual(got, want) == false {
		t.Errorf("List() = %v, expected %v", got, want)
	}
}

func TestNegatedEntryKeepsForm(t *testing.T) {
	tbl := openFakeTable(t, newFakeDevice())

	if _, err := tbl.Add("! 2001:db8::/32"); err != nil {
		t.Fatalf("Add error: %s", err)
	}
	want := []string{"! 2001:db8::/32"}
	if got := tbl.List(); reflect.DeepEqual(got, want) == false {
		t.Errorf("List() = %v, expected %v", got, want)
	}
}

func TestAddRemoveLeavesEmpty(t *testing.T) {
	dev := newFakeDevice()
	tbl := openFakeTable(t, dev)

	if n, _ := tbl.Add("10.0.0.1"); n != 1 {
		t.Error("first Add expected to report 1")
	}
	if n, _ := tbl.Add("10.0.0.1"); n != 0 {
		t.Error("second Add expected to report 0")
	}
	if n, _ := tbl.Remove("10.0.0.1"); n != 1 {
		t.Error("Remove expected to report 1")
	}
	if got := tbl.List(); len(got) != 0 {
		t.Errorf("List() = %v, expected empty", got)
	}
	if len(dev.records) != 0 {
		t.Errorf("kernel table still holds %d entries", len(dev.records))
	}
}

func TestClear(t *testing.T) {
	dev := newFakeDevice("192.0.2.1", "192.0.2.2", "192.0.2.3")
	tbl := openFakeTable(t, dev)

	n, err := tbl.Clear()
	if err != nil {
		t.Fatalf("Clear error: %s", err)
	}
	if n != 3 {
		t.Errorf("Clear returned %d, expected 3", n)
	}
	if tbl.Len() != 0 || len(dev.records) != 0 {
		t.Error("table not empty after Clear")
	}
}

func TestMutationRollsBackOnKernelFailure(t *testing.T) {
	dev := newFakeDevice("192.0.2.1")
	tbl := openFakeTable(t, dev)

	dev.failSet = ControlCallError{Op: "DIOCRSETADDRS", Errno: syscall.EINVAL}
	if _, err := tbl.Add("10.0.0.1"); err == nil {
		t.Fatal("Add expected to fail")
	}
	if got := tbl.List(); reflect.DeepEqual(got, []string{"192.0.2.1"}) == false {
		t.Errorf("mirror diverged after failed Add: %v", got)
	}

	dev.failSet = ControlCallError{Op: "DIOCRSETADDRS", Errno: syscall.EINVAL}
	if _, err := tbl.Remove("192.0.2.1"); err == nil {
		t.Fatal("Remove expected to fail")
	}
	if got := tbl.List(); reflect.DeepEqual(got, []string{"192.0.2.1"}) == false {
		t.Errorf("mirror diverged after failed Remove: %v", got)
	}

	dev.failSet = ControlCallError{Op: "DIOCRSETADDRS", Errno: syscall.EINVAL}
	if _, err := tbl.Clear(); err == nil {
		t.Fatal("Clear expected to fail")
	}
	if got := tbl.List(); reflect.DeepEqual(got, []string{"192.0.2.1"}) == false {
		t.Errorf("mirror diverged after failed Clear: %v", got)
	}

	// the table must keep working after a failure
	if n, err := tbl.Add("10.0.0.1"); err != nil || n != 1 {
		t.Errorf("Add after failure returned (%d, %v), expected (1, nil)", n, err)
	}
}

func TestConcurrentAdds(t *testing.T) {
	const workers = 32

	dev := newFakeDevice()
	tbl := openFakeTable(t, dev)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := tbl.Add(fmt.Sprintf("10.1.%d.0/24", n)); err != nil {
				t.Errorf("concurrent Add error: %s", err)
			}
		}(i)
	}

	// watch the table while the adds run: every observation must be a
	// consistent set, never more than added and never with duplicates
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			got := tbl.List()
			if len(got) > workers {
				t.Errorf("List observed %d entries, more than ever added", len(got))
				return
			}
			seen := make(map[string]struct{}, len(got))
			for _, s := range got {
				if _, dup := seen[s]; dup {
					t.Errorf("List observed duplicate entry %s", s)
					return
				}
				seen[s] = struct{}{}
			}
			if len(got) == workers {
				return
			}
		}
	}()

	wg.Wait()
	<-done

	if tbl.Len() != workers {
		t.Errorf("mirror holds %d entries, expected %d", tbl.Len(), workers)
	}
	if len(dev.records) != workers {
		t.Errorf("kernel table holds %d entries, expected %d", len(dev.records), workers)
	}
	if dev.setCalls != workers {
		t.Errorf("%d kernel replace calls, expected %d", dev.setCalls, workers)
	}
	if dev.overlaps != 0 {
		t.Errorf("%d overlapping kernel replace calls observed", dev.overlaps)
	}
}
