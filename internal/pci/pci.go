// Package pci models the bus position facts the external bus walk hands
// to interrupt fixup: where a device sits, which bridges are above it,
// and which INTx pin it drives. It does no enumeration and touches no
// configuration space.
package pci

import "fmt"

// Bus is one level of the bus tree. The root bus has a nil Parent and no
// Bridge; every subordinate bus is created by a bridge device on its
// parent bus.
type Bus struct {
	Number uint8
	Parent *Bus
	Bridge *Device // the bridge on Parent that owns this bus; nil on root
}

// Root reports whether b is the root bus.
func (b *Bus) Root() bool { return b == nil || b.Parent == nil }

// Device describes one function at a bus position.
type Device struct {
	Bus      *Bus
	Slot     uint8
	Function uint8

	// Pin is the raw INTx pin the function drives, 1 (INTA) through
	// 4 (INTD). Zero means the function uses no line interrupts.
	Pin uint8

	VendorID uint16
	DeviceID uint16
}

func (d Device) String() string {
	var bus uint8
	if d.Bus != nil {
		bus = d.Bus.Number
	}
	return fmt.Sprintf("%02x:%02x.%d", bus, d.Slot, d.Function)
}
