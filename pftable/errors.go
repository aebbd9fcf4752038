package pftable

import (
	"fmt"
	"syscall"
)

// InvalidAddressError is returned when a textual address cannot be parsed.
type InvalidAddressError struct {
	Text string
}

func (e InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q", e.Text)
}

// MalformedRecordError is returned when a kernel record cannot be decoded.
// It means the codec and the kernel disagree about the table entry layout,
// so the mirror cannot be trusted.
type MalformedRecordError struct {
	Af  uint8
	Net uint8
}

func (e MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed table record: af=%d net=%d", e.Af, e.Net)
}

// ControlCallError is a failed ioctl against the packet filter device.
type ControlCallError struct {
	Op    string
	Errno syscall.Errno
}

func (e ControlCallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Errno)
}

func (e ControlCallError) Unwrap() error {
	return e.Errno
}

// DeviceUnavailableError is returned when the packet filter device cannot
// be opened. There is no recovering from it, the daemon cannot start.
type DeviceUnavailableError struct {
	Path string
	Err  error
}

func (e DeviceUnavailableError) Error() string {
	return fmt.Sprintf("cannot open %s: %s", e.Path, e.Err)
}

func (e DeviceUnavailableError) Unwrap() error {
	return e.Err
}
