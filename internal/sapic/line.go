package sapic

import (
	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/irt"
)

// lineState is the mutable state of one redirection-table line. The
// back-reference to the owning controller is non-owning; the controller
// exclusively owns its line array.
type lineState struct {
	index uint8
	ctrl  *Controller

	// entry is set at most once, by the first successful fixup of the
	// line. Later fixups short-circuit on it.
	entry *irt.Entry

	// irq is the processor-interrupt identity, 0 until allocated. Once
	// set it never changes.
	irq host.IRQ

	// Message payload targeting the destination processor. txnAddr is
	// rewritten by set-affinity under the engine lock.
	txnAddr uint64
	txnData uint32

	// End-of-interrupt signal: eoiData written to the controller's EOI
	// cell. eoiAddr records the physical address for diagnostics; the
	// write itself goes through the controller window.
	eoiAddr uint64
	eoiData uint32
}

// eoi signals hardware end-of-interrupt for the line: a single write of
// the line's ack data to the EOI cell. If the line is still asserted the
// chip re-triggers delivery. Takes no lock; the EOI cell is uncorrelated
// with the select/window pair and the write is safe to race against
// redirection-entry edits.
func (l *lineState) eoi() {
	l.ctrl.window.Write32(regEOI, l.eoiData)
}
