package loggers

import (
	"fmt"
	"strings"
)

const logTag = "pftabled"

// Logger is the common interface that every logger must met.
// Serves as a generic holder of different types of loggers.
type Logger interface {
	Transform(...interface{}) string
	Write(string)
}

// LoggerConfig holds the configuration of a logger
type LoggerConfig struct {
	// Name of the logger: syslog, ...
	Name string
	// Protocol: udp, tcp ("" for the local daemon)
	Protocol string
	// Server: 127.0.0.1:514 ("" for the local daemon)
	Server string
	// Tag: pftabled, mytag, ...
	Tag string
}

// LoggerManager holds the configured loggers and dispatches traces to them.
type LoggerManager struct {
	loggers map[string]Logger
	msgs    chan []interface{}
	count   int
}

// NewLoggerManager instantiates all the configured loggers.
func NewLoggerManager() *LoggerManager {
	lm := &LoggerManager{
		loggers: make(map[string]Logger),
	}

	return lm
}

// Load loggers configuration and initialize them.
func (l *LoggerManager) Load(configs []LoggerConfig) {
	for _, cfg := range configs {
		switch cfg.Name {
		case LOGGER_SYSLOG:
			if lgr, err := NewSyslog(&cfg); err == nil {
				l.count++
				l.loggers[lgr.Name] = lgr
			}
		}
	}

	if l.count == 0 {
		return
	}

	l.msgs = make(chan []interface{}, 128)
	go l.worker()
}

func (l *LoggerManager) write(args ...interface{}) {
	for _, logger := range l.loggers {
		logger.Write(logger.Transform(args...))
	}
}

func (l *LoggerManager) worker() {
	for msg := range l.msgs {
		l.write(msg...)
	}
}

// Log sends data to the loggers. Traces are dropped instead of blocking the
// caller when the queue is full.
func (l *LoggerManager) Log(args ...interface{}) {
	if l.count == 0 {
		return
	}
	select {
	case l.msgs <- args:
	default:
	}
}

// transform joins the trace fields into a single line.
func transform(args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintln(args...))
}
