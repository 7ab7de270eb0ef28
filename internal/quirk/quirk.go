// Package quirk holds device-specific interrupt-routing overrides that
// would otherwise bleed into the redirection engine. The canonical case
// is the legacy combo-I/O chip whose functions are all routed through
// the PIC on function 1, while its USB function still owns a routing
// table entry and must have its redirection entry programmed.
package quirk

import (
	"fmt"

	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/pci"
)

// Decision is what fixup does with a matched device.
type Decision int

const (
	// Passthrough means no quirk applies; normal resolution proceeds.
	Passthrough Decision = iota

	// Claim means the quirk supplied the identity and the redirection
	// engine must not touch the device.
	Claim

	// ClaimAndProgram means the quirk registered the device but the
	// engine must still resolve and program its redirection entry.
	ClaimAndProgram
)

// Policy is consulted before the engine resolves a device's pin.
type Policy interface {
	Fixup(dev pci.Device) (Decision, host.IRQ, error)
}

// LegacyRouter supplies the identity for devices whose interrupts are
// wired through a legacy interrupt controller instead of the redirection
// engine.
type LegacyRouter interface {
	RouteLegacy(dev pci.Device) (host.IRQ, error)
}

// Rule matches one function of a quirky device by PCI IDs.
type Rule struct {
	Vendor uint16 `yaml:"vendor"`
	Device uint16 `yaml:"device"`

	// Program marks functions that must still have a redirection entry
	// programmed even though their identity comes from the legacy
	// router.
	Program bool `yaml:"program,omitempty"`
}

// The combo-card chip: all three functions take their interrupt identity
// from the PICs on function 1, but firmware publishes a routing-table
// entry for the USB function because it advertises an INT pin, and that
// entry must be programmed for the PIC output to reach a processor.
const (
	comboVendor    = 0x100b
	comboIDE       = 0x0002
	comboLegacyIO  = 0x000e
	comboUSB       = 0x0012
)

// BuiltinRules returns the rules for devices known to need overriding.
func BuiltinRules() []Rule {
	return []Rule{
		{Vendor: comboVendor, Device: comboIDE},
		{Vendor: comboVendor, Device: comboLegacyIO},
		{Vendor: comboVendor, Device: comboUSB, Program: true},
	}
}

// Table is the rule-matching Policy implementation.
type Table struct {
	rules  []Rule
	router LegacyRouter
}

// NewTable builds a policy from rules. The router supplies identities for
// claimed devices; a nil router makes every match an error, since a
// matched device cannot be routed normally.
func NewTable(rules []Rule, router LegacyRouter) *Table {
	return &Table{rules: rules, router: router}
}

// Fixup implements Policy.
func (t *Table) Fixup(dev pci.Device) (Decision, host.IRQ, error) {
	for _, r := range t.rules {
		if r.Vendor != dev.VendorID || r.Device != dev.DeviceID {
			continue
		}
		if t.router == nil {
			return Passthrough, 0, fmt.Errorf("quirk: %s matches %04x:%04x but no legacy router is configured",
				dev, r.Vendor, r.Device)
		}
		irq, err := t.router.RouteLegacy(dev)
		if err != nil {
			return Passthrough, 0, fmt.Errorf("quirk: legacy routing for %s: %w", dev, err)
		}
		if r.Program {
			return ClaimAndProgram, irq, nil
		}
		return Claim, irq, nil
	}
	return Passthrough, 0, nil
}

var _ Policy = (*Table)(nil)
