// Package sapic is the redirection engine core: it binds firmware
// routing-table entries to controller input lines, programs the per-line
// redirection entries, and implements the mask/unmask/ack/affinity
// operations the dispatch framework invokes.
package sapic

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/hwio"
	"github.com/perihelion-os/iosapic/internal/irt"
	"github.com/perihelion-os/iosapic/internal/quirk"
)

// OpsName is the name the per-line operation table is registered under.
const OpsName = "iosapic-level"

var (
	// ErrNotPresent means a controller's address is absent from the
	// routing table: it is not platform-managed, which is not a fault.
	ErrNotPresent = errors.New("sapic: controller not in routing table")

	// ErrNotConnected means a device's pin resolves to no routing-table
	// entry. The device gets no interrupt; the platform continues.
	ErrNotConnected = errors.New("sapic: interrupt not connected")

	// ErrNoIdentity means the host allocator could not produce a
	// processor-interrupt identity for a line.
	ErrNoIdentity = errors.New("sapic: no processor interrupt identity")
)

// Config carries the engine's collaborators.
type Config struct {
	// Firmware provides the routing table. Required.
	Firmware irt.Firmware

	// Mapper maps controller register windows. Required.
	Mapper hwio.Mapper

	// Allocator hands out processor-interrupt identities. Required.
	Allocator host.IdentityAllocator

	// Dispatcher is the host interrupt-dispatch framework. Required.
	Dispatcher host.Dispatcher

	// Quirks overrides routing for known-broken devices. Optional.
	Quirks quirk.Policy

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine owns the routing table, the programming lock, and every
// registered controller.
type Engine struct {
	// mu serializes all select/window read-modify-write sequences and
	// the line-state mutations of mask, unmask, and set-affinity, across
	// every controller. It is never held across dispatcher or firmware
	// calls. EOI writes do not take it.
	mu sync.Mutex

	table  *irt.Table
	mode   irt.AddressingMode
	mapper hwio.Mapper
	alloc  host.IdentityAllocator
	disp   host.Dispatcher
	quirks quirk.Policy
	logger *slog.Logger
}

// New loads the routing table and returns an engine committed to the
// firmware's addressing mode. A firmware without the routing-table
// capability yields a working engine whose Register always reports
// ErrNotPresent.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Firmware == nil:
		return nil, errors.New("sapic: config needs a firmware provider")
	case cfg.Mapper == nil:
		return nil, errors.New("sapic: config needs a register-window mapper")
	case cfg.Allocator == nil:
		return nil, errors.New("sapic: config needs an identity allocator")
	case cfg.Dispatcher == nil:
		return nil, errors.New("sapic: config needs a dispatcher")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loader := irt.NewLoader(cfg.Firmware, logger)
	table, err := loader.LoadCurrentCell()
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		logger.Info("iosapic: no routing table, dynamic resolution disabled")
	}
	return &Engine{
		table:  table,
		mode:   loader.Mode(),
		mapper: cfg.Mapper,
		alloc:  cfg.Allocator,
		disp:   cfg.Dispatcher,
		quirks: cfg.Quirks,
		logger: logger,
	}, nil
}

// Table exposes the loaded routing table for diagnostics.
func (e *Engine) Table() *irt.Table { return e.table }

// Mode returns the addressing mode the engine committed to.
func (e *Engine) Mode() irt.AddressingMode { return e.mode }

// Controller is one physical redirection engine: its register window,
// version, and per-line state. Controllers live for the platform's
// lifetime once registered.
type Controller struct {
	engine  *Engine
	window  hwio.Window
	hpa     uint64
	version uint32
	lines   []lineState
}

// Register announces a controller at physical address hpa. Controllers
// whose address is absent from the routing table are not platform-managed
// and yield ErrNotPresent with nothing allocated.
func (e *Engine) Register(hpa uint64) (*Controller, error) {
	if !e.table.ContainsController(e.mode, hpa) {
		e.logger.Debug("iosapic: ignoring unrouted controller", "hpa", fmt.Sprintf("%#x", hpa))
		return nil, fmt.Errorf("%w: %#x", ErrNotPresent, hpa)
	}
	win, err := e.mapper.Map(hpa, WindowSize)
	if err != nil {
		return nil, fmt.Errorf("sapic: map window for %#x: %w", hpa, err)
	}
	c := &Controller{engine: e, window: win, hpa: hpa}
	c.version = c.readRegister(idxVersion)
	n := maxEntryOf(c.version) + 1
	c.lines = make([]lineState, n)
	for i := range c.lines {
		c.lines[i].index = uint8(i)
		c.lines[i].ctrl = c
	}
	e.logger.Info("iosapic: registered controller",
		"hpa", fmt.Sprintf("%#x", hpa),
		"version", versionOf(c.version),
		"lines", n)
	return c, nil
}

// HPA returns the controller's physical address.
func (c *Controller) HPA() uint64 { return c.hpa }

// Version returns the hardware version byte.
func (c *Controller) Version() uint8 { return versionOf(c.version) }

// NumLines returns the controller's redirection-entry count.
func (c *Controller) NumLines() int { return len(c.lines) }

// readRegister performs one select-then-read access. Callers needing
// read-modify-write atomicity hold the engine lock around the whole
// sequence.
func (c *Controller) readRegister(idx uint32) uint32 {
	c.window.Write32(regSelect, idx)
	return c.window.Read32(regWindow)
}

// writeRegister performs one select-then-write access, then reads the
// window back to force the write to complete before anything that
// depends on it.
func (c *Controller) writeRegister(idx uint32, v uint32) {
	c.window.Write32(regSelect, idx)
	c.window.Write32(regWindow, v)
	_ = c.window.Read32(regWindow)
}

// readEntry returns both words of line's redirection entry.
func (c *Controller) readEntry(line uint8) (EntryLow, EntryHigh) {
	lo := c.readRegister(entryLowIdx(line))
	hi := c.readRegister(entryHighIdx(line))
	return EntryLow(lo), EntryHigh(hi)
}

// writeEntry programs both words of line's redirection entry, flushing
// each word before the next access.
func (c *Controller) writeEntry(line uint8, lo EntryLow, hi EntryHigh) {
	c.writeRegister(entryLowIdx(line), uint32(lo))
	c.writeRegister(entryHighIdx(line), uint32(hi))
}
