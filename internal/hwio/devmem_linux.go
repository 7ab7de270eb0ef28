//go:build linux

package hwio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem maps physical register windows through /dev/mem. Requires a
// kernel without STRICT_DEVMEM restrictions on the target range.
type DevMem struct{}

type devmemWindow struct {
	mem []byte
	off uint64
}

// Map implements Mapper.
func (DevMem) Map(phys uint64, size uint64) (Window, error) {
	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("hwio: open /dev/mem: %w", err)
	}
	defer unix.Close(fd)

	page := uint64(unix.Getpagesize())
	base := phys &^ (page - 1)
	off := phys - base
	length := (off + size + page - 1) &^ (page - 1)

	mem, err := unix.Mmap(fd, int64(base), int(length),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("hwio: mmap %#x+%#x: %w", base, length, err)
	}
	return &devmemWindow{mem: mem, off: off}, nil
}

// Read32 and Write32 go through sync/atomic so each register access is a
// single ordered 32-bit load or store, never split or coalesced by the
// compiler.

func (w *devmemWindow) Read32(off uint64) uint32 {
	return atomic.LoadUint32(w.reg(off))
}

func (w *devmemWindow) Write32(off uint64, v uint32) {
	atomic.StoreUint32(w.reg(off), v)
}

func (w *devmemWindow) reg(off uint64) *uint32 {
	return (*uint32)(unsafe.Pointer(&w.mem[w.off+off]))
}

var _ Mapper = DevMem{}
