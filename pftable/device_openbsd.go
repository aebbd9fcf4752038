//go:build openbsd

package pftable

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pfDevice is one open handle to /dev/pf bound to one table name. The
// handle lives for the whole daemon lifetime, it is not reopened per
// request.
type pfDevice struct {
	fd    int
	table pfrTable
}

func openDevice(table string) (channel, error) {
	fd, err := unix.Open(pfDevicePath, unix.O_RDWR, 0)
	if err != nil {
		return nil, DeviceUnavailableError{Path: pfDevicePath, Err: err}
	}

	d := &pfDevice{fd: fd}
	copy(d.table.Name[:], table)
	return d, nil
}

func (d *pfDevice) ioctl(op string, req uintptr, io *pfiocTable) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(unsafe.Pointer(io)))
	if errno != 0 {
		return ControlCallError{Op: op, Errno: errno}
	}
	return nil
}

// getAddrs copies the table contents into buf and reports how many
// entries the kernel table holds, which may exceed len(buf).
func (d *pfDevice) getAddrs(buf []pfrAddr) (int, error) {
	io := pfiocTable{
		Table: d.table,
		Esize: int32(unsafe.Sizeof(pfrAddr{})),
		Size:  int32(len(buf)),
	}
	if len(buf) > 0 {
		io.Buffer = unsafe.Pointer(&buf[0])
	}

	if err := d.ioctl("DIOCRGETADDRS", diocrGetAddrs, &io); err != nil {
		return 0, err
	}
	runtime.KeepAlive(buf)
	return int(io.Size), nil
}

// setAddrs atomically replaces the table contents with addrs. A nil or
// empty buffer empties the table.
func (d *pfDevice) setAddrs(addrs []pfrAddr) (delta, error) {
	io := pfiocTable{
		Table: d.table,
		Esize: int32(unsafe.Sizeof(pfrAddr{})),
		Size:  int32(len(addrs)),
	}
	if len(addrs) > 0 {
		io.Buffer = unsafe.Pointer(&addrs[0])
	}

	if err := d.ioctl("DIOCRSETADDRS", diocrSetAddrs, &io); err != nil {
		return delta{}, err
	}
	runtime.KeepAlive(addrs)
	return delta{
		deleted: int(io.Ndel),
		added:   int(io.Nadd),
		changed: int(io.Nchange),
	}, nil
}

func (d *pfDevice) Close() error {
	return unix.Close(d.fd)
}
