package sapic

import "github.com/perihelion-os/iosapic/internal/irt"

// Register window layout. Fixed by the hardware; every offset and stride
// here is a bit-exact contract.
const (
	regSelect = 0x00
	regWindow = 0x10
	regEOI    = 0x40

	// WindowSize is the size of the register window mapped per
	// controller.
	WindowSize = 4096

	idxVersion = 0x01
)

// entryLowIdx and entryHighIdx are the window indices of redirection
// entry i's two words.
func entryLowIdx(i uint8) uint32  { return 0x10 + 2*uint32(i) }
func entryHighIdx(i uint8) uint32 { return 0x11 + 2*uint32(i) }

// Version register fields.
const (
	versionMask     = 0x000000ff
	maxEntryMask    = 0x00ff0000
	maxEntryShift   = 16
)

func versionOf(v uint32) uint8   { return uint8(v & versionMask) }
func maxEntryOf(v uint32) uint32 { return (v & maxEntryMask) >> maxEntryShift }

// EntryLow is the low word of a redirection entry.
type EntryLow uint32

const (
	lowSuppress  EntryLow = 0x10000 // set = delivery suppressed (masked)
	lowLevelTrig EntryLow = 0x08000
	lowActiveLow EntryLow = 0x02000
	lowModeLPri  EntryLow = 0x00100 // lowest-priority delivery; unsupported on this family
)

// Suppressed reports whether delivery is masked off.
func (l EntryLow) Suppressed() bool { return l&lowSuppress != 0 }

// Suppress returns l with the delivery-suppress bit set or cleared.
func (l EntryLow) Suppress(on bool) EntryLow {
	if on {
		return l | lowSuppress
	}
	return l &^ lowSuppress
}

// LevelTriggered reports the trigger-mode bit.
func (l EntryLow) LevelTriggered() bool { return l&lowLevelTrig != 0 }

// ActiveLow reports the polarity bit.
func (l EntryLow) ActiveLow() bool { return l&lowActiveLow != 0 }

// TargetData returns the processor target-data bits.
func (l EntryLow) TargetData() uint32 {
	return uint32(l &^ (lowSuppress | lowLevelTrig | lowActiveLow | lowModeLPri))
}

// EntryHigh is the high word of a redirection entry: the destination
// encoding of the target address.
type EntryHigh uint32

// encodeLow builds the low word for a line from its matched routing
// entry and target data. The suppress bit starts clear: encoding is only
// done on the unmask path.
func encodeLow(e *irt.Entry, targetData uint32) EntryLow {
	var l EntryLow
	if e.ActiveLow() {
		l |= lowActiveLow
	}
	if e.LevelTriggered() {
		l |= lowLevelTrig
	}
	// Lowest-priority delivery is not set: this hardware family does not
	// support it.
	return l | EntryLow(targetData)
}

// encodeHigh packs a target address into the high word. Extended
// addressing passes the low 32 bits through. Legacy addressing encodes
// the processor identity in different byte positions than the register
// layout expects, so the address is re-packed:
//
//	eid  0x0ff00000 -> 0x00ff0000
//	id   0x000ff000 -> 0xff000000
//
// e.g. target address 0xfffa0000 encodes to 0xa0ff0000.
func encodeHigh(mode irt.AddressingMode, addr uint64) EntryHigh {
	if mode == irt.ModeLegacy {
		a := uint32(addr)
		return EntryHigh((a&0x0ff00000)>>4 | (a&0x000ff000)<<12)
	}
	return EntryHigh(uint32(addr))
}
