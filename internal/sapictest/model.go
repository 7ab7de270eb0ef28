// Package sapictest models the redirection-engine chip itself: the
// select/window register pair, the redirection entry store, the EOI
// cell, and message delivery. Tests and the irtdump harness run the
// driver against this model instead of hardware.
package sapictest

import (
	"fmt"
	"sync"

	"github.com/perihelion-os/iosapic/internal/hwio"
)

// Register layout of the modeled chip. This mirrors the hardware
// contract the driver programs against.
const (
	regSelect = 0x00
	regWindow = 0x10
	regEOI    = 0x40

	idxVersion   = 0x01
	idxEntryBase = 0x10

	modelVersion = 0x20

	lowMasked    = 0x10000
	lowLevel     = 0x08000
	lowActiveLow = 0x02000
	lowDataMask  = 0x000ff
)

// Message is one message-signaled interrupt emitted by the chip.
type Message struct {
	Addr uint64
	Data uint32
}

// MessageSink receives delivered interrupts.
type MessageSink interface {
	Deliver(m Message)
}

// SinkFunc adapts a function to MessageSink.
type SinkFunc func(m Message)

// Deliver implements MessageSink.
func (f SinkFunc) Deliver(m Message) {
	if f != nil {
		f(m)
	}
}

type noopSink struct{}

func (noopSink) Deliver(Message) {}

type modelEntry struct {
	low, high uint32
	asserted  bool
	inService bool
}

// Model is one simulated redirection engine.
type Model struct {
	mu      sync.Mutex
	index   uint32
	entries []modelEntry
	sink    MessageSink

	eoiWrites  []uint32
	deliveries uint64
	perLine    []uint64
}

// NewModel builds a chip with numLines redirection entries, all masked,
// as hardware comes out of reset.
func NewModel(numLines int) *Model {
	if numLines <= 0 {
		numLines = 16
	}
	m := &Model{
		entries: make([]modelEntry, numLines),
		sink:    noopSink{},
		perLine: make([]uint64, numLines),
	}
	for i := range m.entries {
		m.entries[i].low = lowMasked
	}
	return m
}

// SetSink routes delivered messages to s.
func (m *Model) SetSink(s MessageSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		s = noopSink{}
	}
	m.sink = s
}

// AssertLine raises an input line. An unmasked line that is not awaiting
// EOI delivers immediately; otherwise the assertion is held.
func (m *Model) AssertLine(line int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line < 0 || line >= len(m.entries) {
		return
	}
	e := &m.entries[line]
	edge := !e.asserted
	e.asserted = true
	if edge {
		m.evaluate(line)
	}
}

// DeassertLine lowers an input line.
func (m *Model) DeassertLine(line int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line < 0 || line >= len(m.entries) {
		return
	}
	m.entries[line].asserted = false
}

// Read32 implements hwio.Window.
func (m *Model) Read32(off uint64) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch off {
	case regSelect:
		return m.index
	case regWindow:
		return m.readRegister(m.index)
	default:
		return 0
	}
}

// Write32 implements hwio.Window.
func (m *Model) Write32(off uint64, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch off {
	case regSelect:
		m.index = v
	case regWindow:
		m.writeRegister(m.index, v)
	case regEOI:
		m.handleEOI(v)
	}
}

func (m *Model) readRegister(index uint32) uint32 {
	switch {
	case index == idxVersion:
		return modelVersion | uint32(len(m.entries)-1)<<16
	case index >= idxEntryBase:
		n := int(index-idxEntryBase) / 2
		if n >= len(m.entries) {
			return 0
		}
		if (index-idxEntryBase)&1 == 1 {
			return m.entries[n].high
		}
		return m.entries[n].low
	default:
		return 0
	}
}

func (m *Model) writeRegister(index uint32, v uint32) {
	if index < idxEntryBase {
		return // version and id registers are read-only
	}
	n := int(index-idxEntryBase) / 2
	if n >= len(m.entries) {
		return
	}
	if (index-idxEntryBase)&1 == 1 {
		m.entries[n].high = v
	} else {
		m.entries[n].low = v
	}
	// The chip does not deliver on unmask. A line asserted while masked
	// stays held until the driver's post-unmask EOI re-evaluates it.
}

// handleEOI clears the in-service state of every line whose target data
// matches and re-delivers any line still asserted. On this hardware
// family the target data occupies the low byte of the entry's low word.
func (m *Model) handleEOI(v uint32) {
	m.eoiWrites = append(m.eoiWrites, v)
	for line := range m.entries {
		e := &m.entries[line]
		if e.low&lowDataMask != v&lowDataMask {
			continue
		}
		e.inService = false
		if e.asserted {
			m.evaluate(line)
		}
	}
}

// evaluate delivers line's message if it is asserted, enabled, and not
// awaiting EOI. Callers hold m.mu.
func (m *Model) evaluate(line int) {
	e := &m.entries[line]
	if !e.asserted || e.low&lowMasked != 0 || e.inService {
		return
	}
	e.inService = true
	m.deliveries++
	m.perLine[line]++
	m.sink.Deliver(Message{Addr: uint64(e.high), Data: e.low & lowDataMask})
}

// Entry returns the raw words of one redirection entry.
func (m *Model) Entry(line int) (low, high uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line < 0 || line >= len(m.entries) {
		return 0, 0
	}
	return m.entries[line].low, m.entries[line].high
}

// EOIWrites returns every value written to the EOI cell, in order.
func (m *Model) EOIWrites() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.eoiWrites...)
}

// Deliveries returns the total message count.
func (m *Model) Deliveries() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveries
}

// Bus maps physical addresses to chip models, standing in for the
// platform's register-window mapper.
type Bus struct {
	mu     sync.Mutex
	models map[uint64]*Model
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{models: make(map[uint64]*Model)}
}

// Add places a model at a physical address.
func (b *Bus) Add(phys uint64, m *Model) {
	b.mu.Lock()
	b.models[phys] = m
	b.mu.Unlock()
}

// Map implements hwio.Mapper.
func (b *Bus) Map(phys uint64, size uint64) (hwio.Window, error) {
	_ = size
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.models[phys]
	if !ok {
		return nil, &UnmappedError{Phys: phys}
	}
	return m, nil
}

// UnmappedError reports a Map of an address no model occupies.
type UnmappedError struct {
	Phys uint64
}

func (e *UnmappedError) Error() string {
	return fmt.Sprintf("sapictest: no model at %#x", e.Phys)
}

var (
	_ hwio.Window = (*Model)(nil)
	_ hwio.Mapper = (*Bus)(nil)
)
