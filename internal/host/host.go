// Package host declares the contracts the redirection engine consumes
// from and exposes to the rest of the operating system: the processor
// interrupt-identity allocator and the interrupt-dispatch framework.
package host

import "errors"

// IRQ is an opaque processor-interrupt identity handed out by the
// allocator. Zero means "not allocated".
type IRQ uint32

// ErrBadDestination is returned by affinity checks when the requested
// destination processor is not a permitted target.
var ErrBadDestination = errors.New("host: destination cpu not permitted")

// IdentityAllocator hands out processor-interrupt identities and derives
// the message payload that targets them.
type IdentityAllocator interface {
	// AllocIRQ allocates a fresh identity. countHint advises how many
	// consecutive identities the caller may eventually need.
	AllocIRQ(countHint int) (IRQ, error)

	// TargetAddress returns the message address that delivers irq to its
	// current destination processor.
	TargetAddress(irq IRQ) uint64

	// TargetData returns the message data payload for irq.
	TargetData(irq IRQ) uint32

	// AffinityAddress returns the message address that delivers irq to
	// the given destination processor, without changing the identity's
	// recorded destination.
	AffinityAddress(irq IRQ, cpu int) (uint64, error)
}

// LineOps is the operation table the dispatch framework invokes for one
// line-triggered redirected interrupt.
type LineOps interface {
	// Mask stops hardware delivery for the line.
	Mask()

	// Unmask programs the line and re-enables delivery. It must leave a
	// line that was asserted while masked deliverable.
	Unmask()

	// Ack signals hardware end-of-interrupt and runs the generic
	// identity-level acknowledge.
	Ack()

	// SetAffinity retargets the line at another processor. A vetoed
	// destination returns an error and leaves the line unchanged.
	SetAffinity(cpu int) error
}

// Dispatcher is the interrupt-dispatch framework the engine registers
// lines with.
type Dispatcher interface {
	// ClaimIRQ binds a named operation table to an identity.
	ClaimIRQ(irq IRQ, name string, ops LineOps) error

	// AckIRQ performs the generic identity-level acknowledge step that
	// follows a hardware end-of-interrupt.
	AckIRQ(irq IRQ)

	// CheckAffinity vetoes or permits retargeting irq at cpu.
	CheckAffinity(irq IRQ, cpu int) error
}
