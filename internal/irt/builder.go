package irt

// Builder assembles wire-format routing tables. It exists for tests and
// for offline table fixtures; production tables come from firmware.
type Builder struct {
	entries []Entry
}

// Add appends an arbitrary entry.
func (b *Builder) Add(e Entry) *Builder {
	b.entries = append(b.entries, e)
	return b
}

// Vectored appends a well-formed vectored entry routing (slot, pin) of
// the controller at addr to the given input line.
func (b *Builder) Vectored(addr uint64, slot, pin, line uint8, polarity, trigger uint8) *Builder {
	return b.Add(Entry{
		EntryType:          EntryTypeIOSAPIC,
		EntryLength:        EntryLengthIOSAPIC,
		InterruptType:      InterruptTypeVectored,
		PolarityTrigger:    polarity | trigger<<triggerShift,
		SourceBusIRQDevno:  Devno(slot, pin),
		DestInputLine:      line,
		DestControllerAddr: addr,
	})
}

// Bytes returns the wire image of the table built so far.
func (b *Builder) Bytes() []byte {
	out := make([]byte, len(b.entries)*EntrySize)
	for i := range b.entries {
		b.entries[i].encode(out[i*EntrySize:])
	}
	return out
}

// Table decodes the built image, exactly as the loader would.
func (b *Builder) Table() *Table {
	t, err := Parse(b.Bytes(), len(b.entries))
	if err != nil {
		panic(err) // builder-produced images always decode
	}
	return t
}
