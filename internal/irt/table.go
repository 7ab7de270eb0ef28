package irt

import "fmt"

// AddressingMode selects how an entry's 64-bit controller address is
// compared against a controller's physical address, and how target
// addresses are packed into the redirection entry's high word. It is
// committed once at startup from the firmware dialect.
type AddressingMode int

const (
	// ModeExtended compares the full 64-bit address and writes target
	// addresses through unchanged.
	ModeExtended AddressingMode = iota
	// ModeLegacy forces the high 32 bits of the controller address to a
	// sentinel pattern before comparing, and re-packs target addresses
	// into the byte positions the legacy convention expects.
	ModeLegacy
)

// legacyAddrFill is OR'd over a 32-bit physical address before comparing
// it with a table entry under legacy addressing.
const legacyAddrFill = 0xffffffff00000000

// MatchAddr reports whether a table entry's controller address refers to
// the controller at physical address hpa.
func (m AddressingMode) MatchAddr(entryAddr, hpa uint64) bool {
	if m == ModeLegacy {
		return entryAddr == hpa|legacyAddrFill
	}
	return entryAddr == hpa
}

func (m AddressingMode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "extended"
}

// Table is an immutable sequence of routing entries, loaded once at
// platform bring-up and never mutated afterwards.
type Table struct {
	entries []Entry
}

// Parse decodes a firmware table image of n entries.
func Parse(b []byte, n int) (*Table, error) {
	if len(b) < n*EntrySize {
		return nil, fmt.Errorf("irt: table image %d bytes, need %d for %d entries", len(b), n*EntrySize, n)
	}
	t := &Table{entries: make([]Entry, n)}
	for i := range t.entries {
		t.entries[i] = decodeEntry(b[i*EntrySize:])
	}
	return t, nil
}

// Len returns the number of entries, including inert ones.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries exposes the entry slice for diagnostics. Callers must not
// mutate it.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Lookup scans the table for the first vectored entry routing (slot, pin)
// of the controller at hpa. Pin is 1-based. Inert entries are skipped.
// Returns nil when no entry matches; the caller decides whether that is
// an error.
func (t *Table) Lookup(mode AddressingMode, hpa uint64, slot, pin uint8) *Entry {
	if t == nil {
		return nil
	}
	devno := Devno(slot, pin)
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Vectored() {
			continue
		}
		if !mode.MatchAddr(e.DestControllerAddr, hpa) {
			continue
		}
		if e.SourceBusIRQDevno&devnoMask != devno {
			continue
		}
		// SourceBusID and SourceSegmentID correlate with the controller
		// address on supported platforms and are not compared.
		return e
	}
	return nil
}

// ContainsController reports whether any entry routes to the controller
// at hpa. Used at registration time to decide whether a controller is
// platform-managed at all.
func (t *Table) ContainsController(mode AddressingMode, hpa uint64) bool {
	if t == nil {
		return false
	}
	for i := range t.entries {
		if mode.MatchAddr(t.entries[i].DestControllerAddr, hpa) {
			return true
		}
	}
	return false
}
