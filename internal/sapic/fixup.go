package sapic

import (
	"fmt"

	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/irt"
	"github.com/perihelion-os/iosapic/internal/pci"
	"github.com/perihelion-os/iosapic/internal/quirk"
)

// Fixup resolves dev's interrupt pin to one of ctrl's input lines,
// configures that line, and returns its processor-interrupt identity.
//
// Fixup is idempotent per line: a second call for the same line (a
// repeated fixup, or two functions sharing one line) returns the existing
// identity without allocating another. The external bus walk enumerates
// devices serially; concurrent first-time fixups of the same line are not
// defended against here.
func (e *Engine) Fixup(ctrl *Controller, dev pci.Device) (host.IRQ, error) {
	if ctrl == nil {
		return 0, fmt.Errorf("%w: no controller registered for %s", ErrNotPresent, dev)
	}

	if e.quirks != nil {
		dec, irq, err := e.quirks.Fixup(dev)
		if err != nil {
			return 0, err
		}
		switch dec {
		case quirk.Claim:
			// The quirk owns the routing outright.
			return irq, nil
		case quirk.ClaimAndProgram:
			// The quirk registered the device, but its routing-table
			// entry still needs a programmed line. Fall through.
		}
	}

	entry, err := e.resolve(ctrl, dev)
	if err != nil {
		return 0, err
	}

	lineNo := entry.DestInputLine
	if int(lineNo) >= len(ctrl.lines) {
		return 0, fmt.Errorf("sapic: %s: routing entry names line %d, controller has %d",
			dev, lineNo, len(ctrl.lines))
	}
	line := &ctrl.lines[lineNo]

	// Already configured: first resolution won, reuse its identity.
	if line.entry != nil {
		return line.irq, nil
	}
	line.entry = entry

	irq, err := e.alloc.AllocIRQ(8)
	if err != nil {
		// The device cannot function without an identity, but the
		// failure is isolated to this device rather than the platform.
		line.entry = nil
		return 0, fmt.Errorf("%w: %s: %v", ErrNoIdentity, dev, err)
	}
	line.irq = irq
	line.txnAddr = e.alloc.TargetAddress(irq)
	line.txnData = e.alloc.TargetData(irq)
	line.eoiAddr = ctrl.hpa + regEOI
	line.eoiData = line.txnData

	if err := e.disp.ClaimIRQ(irq, OpsName, &lineOps{line: line}); err != nil {
		// Roll back the claim so a retried fixup does not short-circuit
		// onto a line that has no operation table registered.
		*line = lineState{index: line.index, ctrl: line.ctrl}
		return 0, fmt.Errorf("sapic: claim irq %d for %s: %w", irq, dev, err)
	}

	e.logger.Debug("iosapic: fixed up device",
		"device", dev.String(),
		"hpa", fmt.Sprintf("%#x", ctrl.hpa),
		"line", lineNo,
		"irq", uint32(irq))
	return irq, nil
}

// resolve walks dev's bus position through the skew rule and searches the
// routing table for the controller's line.
func (e *Engine) resolve(ctrl *Controller, dev pci.Device) (*irt.Entry, error) {
	slot, pin, ok := pci.RoutedSlotPin(dev)
	if !ok {
		// The device does not use line interrupts.
		return nil, fmt.Errorf("%w: %s has no interrupt pin", ErrNotConnected, dev)
	}
	entry := e.table.Lookup(e.mode, ctrl.hpa, slot, pin)
	if entry == nil {
		e.logger.Warn("iosapic: no routing entry",
			"device", dev.String(),
			"hpa", fmt.Sprintf("%#x", ctrl.hpa),
			"slot", slot,
			"pin", pin)
		return nil, fmt.Errorf("%w: %s slot %d pin %d", ErrNotConnected, dev, slot, pin)
	}
	return entry, nil
}
