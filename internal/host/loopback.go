package host

import (
	"fmt"
	"sync"
)

// Loopback is an in-process allocator and dispatcher. It backs tests, the
// simulated-chip harness, and cmd/irtdump; it is not a real interrupt
// framework.
//
// Identities start above zero so the engine's "zero means unallocated"
// convention holds. Target addresses follow the processor-identity
// layout the legacy re-pack was designed for: the destination processor
// number occupies bits 12..19 of a fixed high base.
type Loopback struct {
	mu    sync.Mutex
	next  IRQ
	cpus  int
	dest  map[IRQ]int
	ops   map[IRQ]LineOps
	names map[IRQ]string
	acks  []IRQ
}

const loopbackAddrBase = 0xfff00000

// NewLoopback returns a loopback host with the given processor count.
func NewLoopback(cpus int) *Loopback {
	if cpus < 1 {
		cpus = 1
	}
	return &Loopback{
		next:  64,
		cpus:  cpus,
		dest:  make(map[IRQ]int),
		ops:   make(map[IRQ]LineOps),
		names: make(map[IRQ]string),
	}
}

// AllocIRQ implements IdentityAllocator.
func (l *Loopback) AllocIRQ(countHint int) (IRQ, error) {
	_ = countHint // loopback identities are never consecutive-constrained
	l.mu.Lock()
	defer l.mu.Unlock()
	irq := l.next
	l.next++
	l.dest[irq] = 0
	return irq, nil
}

// TargetAddress implements IdentityAllocator.
func (l *Loopback) TargetAddress(irq IRQ) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return loopbackAddrBase | uint64(l.dest[irq])<<12
}

// TargetData implements IdentityAllocator.
func (l *Loopback) TargetData(irq IRQ) uint32 {
	return uint32(irq) & 0xff
}

// AffinityAddress implements IdentityAllocator.
func (l *Loopback) AffinityAddress(irq IRQ, cpu int) (uint64, error) {
	if err := l.CheckAffinity(irq, cpu); err != nil {
		return 0, err
	}
	l.mu.Lock()
	l.dest[irq] = cpu
	l.mu.Unlock()
	return loopbackAddrBase | uint64(cpu)<<12, nil
}

// ClaimIRQ implements Dispatcher.
func (l *Loopback) ClaimIRQ(irq IRQ, name string, ops LineOps) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, claimed := l.ops[irq]; claimed {
		return fmt.Errorf("host: irq %d already claimed", irq)
	}
	l.ops[irq] = ops
	l.names[irq] = name
	return nil
}

// AckIRQ implements Dispatcher.
func (l *Loopback) AckIRQ(irq IRQ) {
	l.mu.Lock()
	l.acks = append(l.acks, irq)
	l.mu.Unlock()
}

// CheckAffinity implements Dispatcher.
func (l *Loopback) CheckAffinity(irq IRQ, cpu int) error {
	if cpu < 0 || cpu >= l.cpus {
		return fmt.Errorf("%w: cpu %d of %d", ErrBadDestination, cpu, l.cpus)
	}
	return nil
}

// Ops returns the operation table claimed for irq, or nil.
func (l *Loopback) Ops(irq IRQ) LineOps {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ops[irq]
}

// Name returns the name the operation table for irq was claimed under.
func (l *Loopback) Name(irq IRQ) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.names[irq]
}

// Acks returns the identities acknowledged so far, in order.
func (l *Loopback) Acks() []IRQ {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]IRQ(nil), l.acks...)
}

// Claimed returns how many identities have registered operation tables.
func (l *Loopback) Claimed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ops)
}

var (
	_ IdentityAllocator = (*Loopback)(nil)
	_ Dispatcher        = (*Loopback)(nil)
)
