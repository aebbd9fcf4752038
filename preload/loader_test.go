package preload

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pftabled/pftabled/pftable"
)

// recordingTable remembers what was fed to it.
type recordingTable struct {
	sync.Mutex
	entries map[string]struct{}
}

func newRecordingTable() *recordingTable {
	return &recordingTable{entries: make(map[string]struct{})}
}

func (t *recordingTable) Add(addr string) (int, error) {
	parsed, err := pftable.ParseAddr(addr)
	if err != nil {
		return 0, err
	}
	t.Lock()
	defer t.Unlock()
	key := parsed.String()
	if _, found := t.entries[key]; found {
		return 0, nil
	}
	t.entries[key] = struct{}{}
	return 1, nil
}

func (t *recordingTable) Remove(addr string) (int, error) { return 0, nil }

func (t *recordingTable) List() []string {
	t.Lock()
	defer t.Unlock()
	list := make([]string, 0, len(t.entries))
	for key := range t.entries {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}

func (t *recordingTable) Clear() (int, error) { return 0, nil }

func (t *recordingTable) has(addr string) bool {
	t.Lock()
	defer t.Unlock()
	_, found := t.entries[addr]
	return found
}

func writePreloadFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %s", path, err)
	}
}

func TestLoadFeedsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preload.txt")
	writePreloadFile(t, path, `# blocklist seed
192.0.2.1
10.0.0.0/8

! 2001:db8::/32
this-is-not-an-address
192.0.2.1
`)

	table := newRecordingTable()
	loader := NewLoader(table)
	defer loader.Close()

	if err := loader.Load(path); err != nil {
		t.Fatalf("loading %s: %s", path, err)
	}

	expected := []string{"! 2001:db8::/32", "10.0.0.0/8", "192.0.2.1"}
	got := table.List()
	if len(got) != len(expected) {
		t.Fatalf("table has %v, expected %v", got, expected)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("table[%d] = %q, expected %q", i, got[i], expected[i])
		}
	}

	// the duplicate line is fed but adds nothing, the bad line is
	// skipped entirely
	if loader.Loaded() != 4 {
		t.Errorf("Loaded() = %d, expected 4", loader.Loaded())
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(newRecordingTable())
	defer loader.Close()

	if err := loader.Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected an error loading a missing file")
	}
}

func TestReloadIsAdditive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preload.txt")
	writePreloadFile(t, path, "192.0.2.1\n192.0.2.2\n")

	table := newRecordingTable()
	loader := NewLoader(table)
	defer loader.Close()

	if err := loader.Load(path); err != nil {
		t.Fatalf("loading %s: %s", path, err)
	}
	if !table.has("192.0.2.1") || !table.has("192.0.2.2") {
		t.Fatalf("initial load incomplete: %v", table.List())
	}

	// drop one address, add another: the new one must arrive, the
	// dropped one must stay in the table
	writePreloadFile(t, path, "192.0.2.2\n192.0.2.3\n")

	deadline := time.Now().Add(5 * time.Second)
	for !table.has("192.0.2.3") {
		if time.Now().After(deadline) {
			t.Fatalf("reload never fed the new address, table: %v", table.List())
		}
		time.Sleep(50 * time.Millisecond)
	}

	if !table.has("192.0.2.1") {
		t.Error("reload removed an address, preloading must only ever add")
	}
}
