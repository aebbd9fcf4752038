// Package control serves the table command language on a unix socket
// wrapped in mutual TLS. One daemon, one socket, many clients.
package control

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/pftabled/pftabled/core"
	"github.com/pftabled/pftabled/log"
	"github.com/pftabled/pftabled/protocol"
	"github.com/pftabled/pftabled/statistics"
)

// The socket is created write-only for group and other. Connecting
// needs write permission, listing the directory does not reveal more
// than the name.
const socketUmask = 0o055

// Server accepts control clients and runs their commands against the
// table.
type Server struct {
	sync.Mutex

	socketPath string
	tlsConfig  *tls.Config
	table      protocol.Table
	stats      *statistics.Statistics

	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closing  bool
}

// NewServer returns a server for the given socket path. The TLS
// configuration must require and verify client certificates, see
// ServerTLSConfig.
func NewServer(socketPath string, tlsConfig *tls.Config, table protocol.Table, stats *statistics.Statistics) *Server {
	return &Server{
		socketPath: socketPath,
		tlsConfig:  tlsConfig,
		table:      table,
		stats:      stats,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the socket and begins accepting clients in the
// background. A socket file left behind by an unclean shutdown is
// removed first, nothing can be listening on it while we are starting.
func (s *Server) Start() error {
	if core.Exists(s.socketPath) {
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("removing stale socket %s: %s", s.socketPath, err)
		}
		log.Debug("control: removed stale socket %s", s.socketPath)
	}

	oldMask := unix.Umask(socketUmask)
	unixListener, err := net.Listen("unix", s.socketPath)
	unix.Umask(oldMask)
	if err != nil {
		return fmt.Errorf("binding control socket %s: %s", s.socketPath, err)
	}
	s.listener = tls.NewListener(unixListener, s.tlsConfig)

	log.Info("control: listening on %s", s.socketPath)
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosing() {
				return
			}
			log.Warning("control: accept: %s", err)
			continue
		}

		s.Lock()
		if s.closing {
			// accepted behind Close's sweep, nobody else will close it
			s.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs the per client loop: read a line, execute it, write
// the reply before reading the next line. Blank lines get no reply.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.Lock()
		delete(s.conns, conn)
		s.Unlock()
	}()

	session := uuid.New().String()
	s.stats.OnConnection()
	log.Debug("control: [%s] client connected", session)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		reply := protocol.Execute(line, s.table)
		if reply == "" {
			continue
		}
		s.stats.OnCommand(session, line, reply)
		if log.GetLogLevel() == log.DEBUG {
			outcome := log.Bold(log.Green("✔"))
			if strings.HasPrefix(reply, "ERROR") {
				outcome = log.Bold(log.Red("✘"))
			}
			log.Debug("%s [%s] %s", outcome, session, line)
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			log.Warning("control: [%s] write: %s", session, err)
			return
		}
	}
	if err := scanner.Err(); err != nil && !s.isClosing() {
		// A client with a bad or missing certificate surfaces here as
		// a handshake error on the first read.
		log.Debug("control: [%s] read: %s", session, err)
	}
	log.Debug("control: [%s] client disconnected", session)
}

func (s *Server) isClosing() bool {
	s.Lock()
	defer s.Unlock()
	return s.closing
}

// Close stops accepting, disconnects the remaining clients, waits for
// their handlers and removes the socket file.
func (s *Server) Close() error {
	s.Lock()
	if s.closing {
		s.Unlock()
		return nil
	}
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
	s.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()

	if core.Exists(s.socketPath) {
		if rmErr := os.Remove(s.socketPath); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
