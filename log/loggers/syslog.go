package loggers

import (
	"log/syslog"

	"github.com/pftabled/pftabled/log"
)

const LOGGER_SYSLOG = "syslog"

// Syslog defines the logger that writes traces to the syslog.
// It can write to the local or a remote daemon.
type Syslog struct {
	Name   string
	Writer *syslog.Writer
	Tag    string
	cfg    *LoggerConfig
}

// NewSyslog returns a new logger that mirrors the daemon traces to syslog,
// local or remote depending on the configuration.
func NewSyslog(cfg *LoggerConfig) (*Syslog, error) {
	sys := &Syslog{
		Name: LOGGER_SYSLOG,
		cfg:  cfg,
	}

	sys.Tag = logTag
	if cfg.Tag != "" {
		sys.Tag = cfg.Tag
	}

	if err := sys.Open(); err != nil {
		log.Error("Error loading syslog logger: %s", err)
		return nil, err
	}
	log.Debug("[syslog logger] initialized: %v", cfg)

	return sys, nil
}

// Open opens a new connection with a server or with the daemon.
func (s *Syslog) Open() error {
	var err error
	if s.cfg.Server != "" {
		s.Writer, err = syslog.Dial(s.cfg.Protocol, s.cfg.Server, syslog.LOG_NOTICE|syslog.LOG_DAEMON, s.Tag)
	} else {
		s.Writer, err = syslog.New(syslog.LOG_NOTICE|syslog.LOG_DAEMON, s.Tag)
	}

	return err
}

// Close closes the writer object
func (s *Syslog) Close() error {
	return s.Writer.Close()
}

// Reopen tries to reestablish the connection with the writer
func (s *Syslog) Reopen() {
	s.Close()
	s.Open()
}

// Transform transforms data for proper ingestion.
func (s *Syslog) Transform(args ...interface{}) string {
	return transform(args...)
}

// Write sends the trace to syslog. Writing back through the leveled logger
// here would feed the trace into this same queue again, so failures only
// trigger a reconnection.
func (s *Syslog) Write(msg string) {
	if err := s.Writer.Notice(msg); err != nil {
		s.Reopen()
	}
}
