package pci

// SwizzlePin rotates a 1-based INTx pin by the device's slot, the fixed
// wiring convention bridges apply to interrupt lines. The rotation is
// applied exactly once per device no matter how many bridge levels sit
// above it.
func SwizzlePin(slot, pin uint8) uint8 {
	return (pin-1+slot)%4 + 1
}

// RoutedSlotPin resolves the (slot, pin) pair to look up in the routing
// table for dev. Devices on the root bus use their own slot and pin
// unchanged. Devices behind bridges get their pin swizzled once by their
// own slot, and the lookup slot is the slot of the topmost bridge below
// the root bus. ok is false when the device drives no interrupt pin.
func RoutedSlotPin(dev Device) (slot, pin uint8, ok bool) {
	pin = dev.Pin
	if pin == 0 {
		return 0, 0, false
	}
	if dev.Bus.Root() {
		return dev.Slot, pin, true
	}
	pin = SwizzlePin(dev.Slot, pin)
	b := dev.Bus
	for !b.Parent.Root() {
		b = b.Parent
	}
	return b.Bridge.Slot, pin, true
}
