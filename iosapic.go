// Package iosapic drives an I/O SAPIC-style interrupt redirection
// engine: hardware that converts line-based peripheral interrupts into
// message-signaled interrupts targeting a specific processor.
//
// The package loads the firmware interrupt routing table, resolves PCI
// device pins to controller input lines (correcting for bridge pin
// skew), programs the per-line redirection entries through the chip's
// select/window register pair, and implements the mask, unmask,
// acknowledge, and set-affinity operations the host dispatch framework
// invokes.
//
// All hardware and host touchpoints are interfaces: the same engine runs
// against memory-mapped registers (DevMem) and against the simulated
// chip used by tests and diagnostics.
package iosapic

import (
	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/hwio"
	"github.com/perihelion-os/iosapic/internal/irt"
	"github.com/perihelion-os/iosapic/internal/pci"
	"github.com/perihelion-os/iosapic/internal/quirk"
	"github.com/perihelion-os/iosapic/internal/sapic"
)

// -----------------------------------------------------------------------------
// Type aliases - re-exports from the internal packages
// -----------------------------------------------------------------------------

// Engine owns the routing table, the programming lock, and every
// registered controller.
type Engine = sapic.Engine

// Config carries the engine's collaborators.
type Config = sapic.Config

// Controller is one registered redirection engine instance.
type Controller = sapic.Controller

// IRQ is an opaque processor-interrupt identity. Zero means unallocated.
type IRQ = host.IRQ

// IdentityAllocator hands out processor-interrupt identities.
type IdentityAllocator = host.IdentityAllocator

// Dispatcher is the host interrupt-dispatch framework.
type Dispatcher = host.Dispatcher

// LineOps is the per-line operation table registered with the Dispatcher.
type LineOps = host.LineOps

// Firmware is the routing-table provider.
type Firmware = irt.Firmware

// RoutingTable is the loaded firmware routing table.
type RoutingTable = irt.Table

// RoutingEntry is one firmware routing-table entry.
type RoutingEntry = irt.Entry

// AddressingMode selects the legacy or extended address conventions.
type AddressingMode = irt.AddressingMode

// Addressing modes, committed once at startup from the firmware dialect.
const (
	ModeExtended = irt.ModeExtended
	ModeLegacy   = irt.ModeLegacy
)

// Window is a 32-bit device register file.
type Window = hwio.Window

// Mapper maps physical register windows.
type Mapper = hwio.Mapper

// DevMem maps windows through /dev/mem (linux only).
type DevMem = hwio.DevMem

// Device and Bus describe a PCI bus position for fixup.
type Device = pci.Device
type Bus = pci.Bus

// QuirkPolicy overrides routing for known-broken devices.
type QuirkPolicy = quirk.Policy

// QuirkRule matches one function of a quirky device.
type QuirkRule = quirk.Rule

// LegacyRouter supplies identities for devices a quirk rule claims.
type LegacyRouter = quirk.LegacyRouter

// OpsName is the name line operation tables are registered under.
const OpsName = sapic.OpsName

// -----------------------------------------------------------------------------
// Sentinel errors
// -----------------------------------------------------------------------------

var (
	// ErrNotPresent: a controller's address is absent from the routing
	// table; it is not platform-managed.
	ErrNotPresent = sapic.ErrNotPresent

	// ErrNotConnected: a device's pin resolves to no routing entry; the
	// device gets no interrupt.
	ErrNotConnected = sapic.ErrNotConnected

	// ErrNoIdentity: the allocator could not produce an identity for a
	// line's device.
	ErrNoIdentity = sapic.ErrNoIdentity

	// ErrFirmwareInconsistent: the firmware violated its routing-table
	// contract; bring-up cannot continue.
	ErrFirmwareInconsistent = irt.ErrFirmwareInconsistent

	// ErrUnsupported: the firmware lacks the routing-table call; the
	// redirection mechanism is disabled, not broken.
	ErrUnsupported = irt.ErrUnsupported

	// ErrBadDestination: a set-affinity destination was vetoed.
	ErrBadDestination = host.ErrBadDestination
)

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

// New loads the routing table from cfg.Firmware and returns an engine
// committed to the firmware's dialect and addressing mode.
func New(cfg Config) (*Engine, error) {
	return sapic.New(cfg)
}

// NewQuirkTable builds a quirk policy from rules; BuiltinQuirkRules
// covers the devices known to need overriding. The router supplies
// identities for devices the rules claim.
func NewQuirkTable(rules []QuirkRule, router LegacyRouter) QuirkPolicy {
	return quirk.NewTable(rules, router)
}

// BuiltinQuirkRules returns the built-in quirk rule set.
func BuiltinQuirkRules() []QuirkRule {
	return quirk.BuiltinRules()
}

// LoadQuirkRulesFile reads additional quirk rules from a YAML file.
func LoadQuirkRulesFile(path string) ([]QuirkRule, error) {
	return quirk.LoadRulesFile(path)
}
