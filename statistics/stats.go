package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pftabled/pftabled/core"
	"github.com/pftabled/pftabled/protocol"
)

// Statistics holds the counters the daemon accumulates while serving the
// control socket. The most recent commands are kept in the Events slice.
type Statistics struct {
	sync.RWMutex

	Started     time.Time
	Connections int
	Commands    int
	Errors      int
	Added       int
	Deleted     int
	Events      []*Event
	ByCommand   map[string]uint64

	// max number of events to keep in the buffer
	maxEvents int
	// max number of events included in a dump
	maxDump int
}

// New returns a new Statistics object.
func New() *Statistics {
	return &Statistics{
		Started:   time.Now(),
		Events:    make([]*Event, 0),
		ByCommand: make(map[string]uint64),
		maxEvents: 150,
		maxDump:   10,
	}
}

// OnConnection increases the counter of accepted client connections.
func (s *Statistics) OnConnection() {
	s.Lock()
	defer s.Unlock()
	s.Connections++
}

// OnCommand records one executed command and its outcome.
// If the backlog is full, it'll be shifted by one.
func (s *Statistics) OnCommand(session, command, reply string) {
	s.Lock()
	defer s.Unlock()

	s.Commands++
	s.ByCommand[kind(command)]++
	if strings.HasPrefix(reply, "ERROR") {
		s.Errors++
	}

	if len(s.Events) == s.maxEvents {
		s.Events = s.Events[1:]
	}
	s.Events = append(s.Events, NewEvent(session, command, reply))
}

func (s *Statistics) onAdded(n int) {
	s.Lock()
	defer s.Unlock()
	s.Added += n
}

func (s *Statistics) onDeleted(n int) {
	s.Lock()
	defer s.Unlock()
	s.Deleted += n
}

// kind maps a command line to the counter bucket it belongs to.
func kind(command string) string {
	command = core.Trim(command)
	switch {
	case strings.HasPrefix(command, "+"):
		return "add"
	case strings.HasPrefix(command, "-"):
		return "remove"
	case command == "?":
		return "list"
	case command == ".":
		return "clear"
	}
	return "unknown"
}

// String renders a human readable snapshot of the counters, dumped to
// the log on SIGUSR1 and at shutdown.
func (s *Statistics) String() string {
	s.RLock()
	defer s.RUnlock()

	out := fmt.Sprintf("%s v%s statistics\n", core.Name, core.Version)
	out += fmt.Sprintf("   uptime:         %v\n", time.Since(s.Started).Round(time.Second))
	out += fmt.Sprintf("   connections:    %d\n", s.Connections)
	out += fmt.Sprintf("   commands:       %d (%d errors)\n", s.Commands, s.Errors)

	kinds := make([]string, 0, len(s.ByCommand))
	for k := range s.ByCommand {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		out += fmt.Sprintf("      %-8s %d\n", k, s.ByCommand[k])
	}

	out += fmt.Sprintf("   addrs added:    %d\n", s.Added)
	out += fmt.Sprintf("   addrs deleted:  %d\n", s.Deleted)

	if len(s.Events) > 0 {
		out += "   last commands:\n"
		first := 0
		if len(s.Events) > s.maxDump {
			first = len(s.Events) - s.maxDump
		}
		for _, e := range s.Events[first:] {
			out += "      " + e.String() + "\n"
		}
	}
	return out
}

// CountingTable wraps the address table so that every successful
// mutation updates the daemon counters on its way through.
type CountingTable struct {
	table protocol.Table
	stats *Statistics
}

// WrapTable returns the given table instrumented with these statistics.
func (s *Statistics) WrapTable(table protocol.Table) *CountingTable {
	return &CountingTable{table: table, stats: s}
}

func (t *CountingTable) Add(addr string) (int, error) {
	n, err := t.table.Add(addr)
	if err == nil && n > 0 {
		t.stats.onAdded(n)
	}
	return n, err
}

func (t *CountingTable) Remove(addr string) (int, error) {
	n, err := t.table.Remove(addr)
	if err == nil && n > 0 {
		t.stats.onDeleted(n)
	}
	return n, err
}

func (t *CountingTable) List() []string {
	return t.table.List()
}

func (t *CountingTable) Clear() (int, error) {
	n, err := t.table.Clear()
	if err == nil && n > 0 {
		t.stats.onDeleted(n)
	}
	return n, err
}
