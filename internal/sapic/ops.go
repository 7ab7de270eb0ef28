package sapic

import (
	"fmt"

	"github.com/perihelion-os/iosapic/internal/host"
)

// lineOps is the operation table registered with the dispatch framework
// for one configured line.
type lineOps struct {
	line *lineState
}

// Mask implements host.LineOps. It sets the delivery-suppress bit with a
// read-modify-write of the entry under the engine lock.
func (o *lineOps) Mask() {
	l := o.line
	e := l.ctrl.engine

	e.mu.Lock()
	lo, hi := l.ctrl.readEntry(l.index)
	l.ctrl.writeEntry(l.index, lo.Suppress(true), hi)
	e.mu.Unlock()
}

// Unmask implements host.LineOps. Both words are re-encoded rather than
// read back: an affinity change may have moved the target address since
// the last programming. The EOI afterwards is unconditional — the line
// may have been asserted while masked, and without the EOI that
// assertion would never clear and the physical line would stall.
func (o *lineOps) Unmask() {
	l := o.line
	e := l.ctrl.engine

	// irq is assigned during fixup; an unmask before any fixup ran is a
	// caller bug.
	if l.irq == 0 {
		e.logger.Warn("iosapic: unmask of unconfigured line",
			"hpa", fmt.Sprintf("%#x", l.ctrl.hpa), "line", l.index)
		return
	}

	e.mu.Lock()
	lo := encodeLow(l.entry, l.txnData)
	hi := encodeHigh(e.mode, l.txnAddr)
	l.ctrl.writeEntry(l.index, lo, hi)
	e.mu.Unlock()

	l.eoi()
}

// Ack implements host.LineOps: hardware end-of-interrupt, then the
// framework's generic identity-level acknowledge.
func (o *lineOps) Ack() {
	l := o.line
	l.eoi()
	l.ctrl.engine.disp.AckIRQ(l.irq)
}

// SetAffinity implements host.LineOps. Only the destination encoding in
// the high word changes; the low word's trigger and polarity bits are
// preserved by re-reading them rather than re-deriving them.
func (o *lineOps) SetAffinity(cpu int) error {
	l := o.line
	e := l.ctrl.engine

	if err := e.disp.CheckAffinity(l.irq, cpu); err != nil {
		return err
	}
	addr, err := e.alloc.AffinityAddress(l.irq, cpu)
	if err != nil {
		return err
	}

	e.mu.Lock()
	lo, _ := l.ctrl.readEntry(l.index)
	l.txnAddr = addr
	hi := encodeHigh(e.mode, addr)
	l.ctrl.writeEntry(l.index, lo, hi)
	e.mu.Unlock()
	return nil
}

var _ host.LineOps = (*lineOps)(nil)
