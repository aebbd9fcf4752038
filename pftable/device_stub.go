//go:build !openbsd

package pftable

import "syscall"

// Only OpenBSD has the pf control device. Building elsewhere keeps the
// codec and the table logic testable, opening the device just fails.
func openDevice(table string) (channel, error) {
	return nil, DeviceUnavailableError{Path: pfDevicePath, Err: syscall.ENODEV}
}
