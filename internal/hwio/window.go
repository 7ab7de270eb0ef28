// Package hwio provides 32-bit register-window access for memory-mapped
// device register files.
package hwio

// Window is a device register file accessed at 32-bit granularity.
// Offsets are byte offsets from the window base.
type Window interface {
	Read32(off uint64) uint32
	Write32(off uint64, v uint32)
}

// Mapper maps a physical register window into the process.
type Mapper interface {
	Map(phys uint64, size uint64) (Window, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(phys uint64, size uint64) (Window, error)

// Map implements Mapper.
func (f MapperFunc) Map(phys uint64, size uint64) (Window, error) {
	return f(phys, size)
}
