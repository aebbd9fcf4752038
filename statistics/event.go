package statistics

import (
	"fmt"
	"strings"
	"time"
)

// Event records one executed control command.
type Event struct {
	Time    time.Time
	Session string
	Command string
	Reply   string
}

func NewEvent(session, command, reply string) *Event {
	return &Event{
		Time:    time.Now(),
		Session: session,
		Command: command,
		Reply:   reply,
	}
}

func (e *Event) String() string {
	return fmt.Sprintf("%s [%s] %q -> %q",
		e.Time.Format("2006-01-02 15:04:05"),
		e.Session,
		e.Command,
		strings.TrimSuffix(e.Reply, "\n"))
}
