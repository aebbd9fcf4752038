package sandbox

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pftabled/pftabled/log"
)

func confine(paths Paths) error {
	// "error" turns violations into ENOSYS instead of killing the
	// daemon, matching how every other failure is handled.
	promises := "unveil stdio rpath cpath unix pf error"
	if paths.LogFile != "" {
		promises = "unveil stdio rpath wpath cpath unix pf error"
	}
	if err := unix.PledgePromises(promises); err != nil {
		return fmt.Errorf("pledge: %s", err)
	}

	for _, path := range paths.ReadOnly {
		if path == "" {
			continue
		}
		if err := unix.Unveil(path, "r"); err != nil {
			return fmt.Errorf("unveil %s: %s", path, err)
		}
	}
	for _, path := range paths.ReadWrite {
		if path == "" {
			continue
		}
		if err := unix.Unveil(path, "rw"); err != nil {
			return fmt.Errorf("unveil %s: %s", path, err)
		}
	}
	if paths.LogFile != "" {
		if err := unix.Unveil(paths.LogFile, "rwc"); err != nil {
			return fmt.Errorf("unveil %s: %s", paths.LogFile, err)
		}
	}
	// "c" so the socket can be created and unlinked at shutdown
	if err := unix.Unveil(paths.Socket, "rc"); err != nil {
		return fmt.Errorf("unveil %s: %s", paths.Socket, err)
	}
	if err := unix.UnveilBlock(); err != nil {
		return fmt.Errorf("unveil block: %s", err)
	}

	// the unveil list is final, drop the right to extend it
	promises = strings.TrimPrefix(promises, "unveil ")
	if err := unix.PledgePromises(promises); err != nil {
		return fmt.Errorf("pledge: %s", err)
	}

	log.Debug("sandbox: pledged \"%s\"", promises)
	return nil
}
