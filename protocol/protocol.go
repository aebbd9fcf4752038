// Package protocol implements the line language of the control socket.
// One command per line, one newline-terminated reply per command, no
// state across lines.
package protocol

import (
	"errors"
	"strings"

	"github.com/pftabled/pftabled/core"
	"github.com/pftabled/pftabled/pftable"
)

// Table is the address table the commands run against. *pftable.Table
// implements it.
type Table interface {
	Add(addr string) (int, error)
	Remove(addr string) (int, error)
	List() []string
	Clear() (int, error)
}

// Protocol replies. Every reply is newline terminated.
const (
	ReplyOK              = "OK\n"
	ReplyMissingAddress  = "ERROR: MISSING ADDRESS\n"
	ReplyInvalidAddress  = "ERROR: INVALID ADDRESS\n"
	ReplyUnknownCommand  = "ERROR: UNKNOWN COMMAND\n"
	ReplyOperationFailed = "ERROR: OPERATION FAILED\n"
)

// Execute runs one command line against the table and returns the reply
// to write back. Blank lines return the empty string, meaning no reply
// at all.
func Execute(line string, table Table) string {
	command := core.Trim(line)
	if command == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(command, "+"):
		if len(command) < 2 {
			return ReplyMissingAddress
		}
		return mutate(table.Add, command[1:])
	case strings.HasPrefix(command, "-"):
		if len(command) < 2 {
			return ReplyMissingAddress
		}
		return mutate(table.Remove, command[1:])
	case command == "?":
		return strings.Join(table.List(), "\n") + "\n"
	case command == ".":
		if _, err := table.Clear(); err != nil {
			return ReplyOperationFailed
		}
		return ReplyOK
	}
	return ReplyUnknownCommand
}

// mutate maps an add or remove outcome to its reply. Bad addresses are
// the client's fault, anything else is a failed kernel update: the
// client gets a generic error and the daemon keeps serving.
func mutate(op func(string) (int, error), addr string) string {
	if _, err := op(addr); err != nil {
		var invalid pftable.InvalidAddressError
		if errors.As(err, &invalid) {
			return ReplyInvalidAddress
		}
		return ReplyOperationFailed
	}
	return ReplyOK
}
