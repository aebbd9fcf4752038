package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func restoreDefaults() {
	SetLogLevel(INFO)
	SetLogUTC(true)
	SetLogMicro(false)
	WithColors = true
	Close()
}

func TestOptionRoundTrip(t *testing.T) {
	defer restoreDefaults()

	SetLogLevel(DEBUG)
	if GetLogLevel() != DEBUG {
		t.Errorf("GetLogLevel() = %d, expected DEBUG", GetLogLevel())
	}
	SetLogLevel(ERROR)
	if GetLogLevel() != ERROR {
		t.Errorf("GetLogLevel() = %d, expected ERROR", GetLogLevel())
	}

	SetLogUTC(false)
	if GetLogUTC() {
		t.Error("GetLogUTC() = true, expected false")
	}
	SetLogMicro(true)
	if GetLogMicro() == false {
		t.Error("GetLogMicro() = false, expected true")
	}
}

func TestColorHelpers(t *testing.T) {
	defer restoreDefaults()

	WithColors = true
	cases := []struct {
		got  string
		want string
	}{
		{Bold("x"), BOLD + "x" + RESET},
		{Dim("x"), DIM + "x" + RESET},
		{Red("x"), RED + "x" + RESET},
		{Green("x"), GREEN + "x" + RESET},
		{Yellow("x"), YELLOW + "x" + RESET},
	}
	for i, c := range cases {
		if c.got != c.want {
			t.Errorf("case %d: %q, expected %q", i, c.got, c.want)
		}
	}

	WithColors = false
	if Bold("x") != "x" || Red("x") != "x" {
		t.Error("colors still applied with WithColors disabled")
	}
}

// Swapping the output file must be safe while other goroutines are
// writing traces, and every trace has to land in whichever file was
// current when it was written.
func TestOpenFileSwapsOutput(t *testing.T) {
	defer restoreDefaults()
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	if err := OpenFile(first); err != nil {
		t.Fatalf("opening %s: %s", first, err)
	}
	Info("first file marker")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				Info("concurrent line")
			}
		}
	}()

	if err := OpenFile(second); err != nil {
		t.Fatalf("opening %s: %s", second, err)
	}
	Info("second file marker")
	close(stop)
	wg.Wait()
	Close()

	firstOut, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("reading %s: %s", first, err)
	}
	if strings.Contains(string(firstOut), "first file marker") == false {
		t.Error("first marker missing from the first log file")
	}
	secondOut, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("reading %s: %s", second, err)
	}
	if strings.Contains(string(secondOut), "second file marker") == false {
		t.Error("second marker missing from the second log file")
	}
	if Output != os.Stdout {
		t.Error("output not back on stdout after Close")
	}
}
