// Package irt loads and searches the firmware-supplied interrupt routing
// table: the platform-wide table binding a PCI (controller, slot, pin)
// triple to an I/O SAPIC input line.
package irt

import (
	"encoding/binary"
	"fmt"
)

// EntrySize is the wire size of one routing-table entry.
const EntrySize = 16

// Values an entry must carry to describe an I/O SAPIC input line. Entries
// with any other type, length, or interrupt type are inert and are skipped
// during search, never treated as malformed.
const (
	EntryTypeIOSAPIC      = 139
	EntryLengthIOSAPIC    = EntrySize
	InterruptTypeVectored = 0
)

// Polarity and trigger subfields of PolarityTrigger. Value 0 means
// "conforms to bus"; value 2 is reserved.
const (
	polarityMask = 0x03
	triggerShift = 2
	triggerMask  = 0x03

	PolarityActiveHigh = 1
	PolarityActiveLow  = 3
	TriggerEdge        = 1
	TriggerLevel       = 3
)

// Packing of SourceBusIRQDevno: device slot in the high bits, pin-1 in the
// low bits.
const (
	devnoSlotShift = 3
	devnoMask      = 0xff
)

// Entry is one firmware routing-table entry. Entries are immutable once
// loaded.
type Entry struct {
	EntryType          uint8
	EntryLength        uint8
	InterruptType      uint8
	PolarityTrigger    uint8
	SourceBusIRQDevno  uint8
	SourceBusID        uint8
	SourceSegmentID    uint8
	DestInputLine      uint8
	DestControllerAddr uint64
}

// Vectored reports whether the entry carries the vectored-interrupt
// signature that makes it usable for line resolution.
func (e *Entry) Vectored() bool {
	return e.EntryType == EntryTypeIOSAPIC &&
		e.EntryLength == EntryLengthIOSAPIC &&
		e.InterruptType == InterruptTypeVectored
}

// ActiveLow reports whether the entry's polarity field says active-low.
func (e *Entry) ActiveLow() bool {
	return e.PolarityTrigger&polarityMask == PolarityActiveLow
}

// LevelTriggered reports whether the entry's trigger field says
// level-triggered.
func (e *Entry) LevelTriggered() bool {
	return (e.PolarityTrigger>>triggerShift)&triggerMask == TriggerLevel
}

// Devno packs a slot and a 1-based interrupt pin the way
// SourceBusIRQDevno stores them.
func Devno(slot, pin uint8) uint8 {
	return (slot << devnoSlotShift) | (pin - 1)
}

// Slot and Pin unpack SourceBusIRQDevno.
func (e *Entry) Slot() uint8 { return e.SourceBusIRQDevno >> devnoSlotShift }
func (e *Entry) Pin() uint8  { return (e.SourceBusIRQDevno & (1<<devnoSlotShift - 1)) + 1 }

func decodeEntry(b []byte) Entry {
	return Entry{
		EntryType:          b[0],
		EntryLength:        b[1],
		InterruptType:      b[2],
		PolarityTrigger:    b[3],
		SourceBusIRQDevno:  b[4],
		SourceBusID:        b[5],
		SourceSegmentID:    b[6],
		DestInputLine:      b[7],
		DestControllerAddr: binary.LittleEndian.Uint64(b[8:16]),
	}
}

func (e *Entry) encode(b []byte) {
	b[0] = e.EntryType
	b[1] = e.EntryLength
	b[2] = e.InterruptType
	b[3] = e.PolarityTrigger
	b[4] = e.SourceBusIRQDevno
	b[5] = e.SourceBusID
	b[6] = e.SourceSegmentID
	b[7] = e.DestInputLine
	binary.LittleEndian.PutUint64(b[8:16], e.DestControllerAddr)
}

func (e *Entry) String() string {
	return fmt.Sprintf("irt entry: type=%d len=%d int=%d pt=%#02x devno=%#02x bus=%d seg=%d line=%d addr=%#x",
		e.EntryType, e.EntryLength, e.InterruptType, e.PolarityTrigger,
		e.SourceBusIRQDevno, e.SourceBusID, e.SourceSegmentID,
		e.DestInputLine, e.DestControllerAddr)
}
