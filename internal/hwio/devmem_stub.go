//go:build !linux

package hwio

import "fmt"

// DevMem is the /dev/mem-backed mapper. It is only available on linux.
type DevMem struct{}

// Map implements Mapper.
func (DevMem) Map(phys uint64, size uint64) (Window, error) {
	return nil, fmt.Errorf("hwio: /dev/mem mapping not supported on this platform")
}

var _ Mapper = DevMem{}
