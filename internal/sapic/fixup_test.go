package sapic

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/irt"
	"github.com/perihelion-os/iosapic/internal/pci"
	"github.com/perihelion-os/iosapic/internal/quirk"
	"github.com/perihelion-os/iosapic/internal/sapictest"
)

func TestFixupConfiguresLine(t *testing.T) {
	rig := newTestRig(t, defaultTable())

	irq, err := rig.engine.Fixup(rig.ctrl, rootDevice(4, 1))
	if err != nil {
		t.Fatalf("fixup: %v", err)
	}
	if irq == 0 {
		t.Fatalf("fixup returned the zero identity")
	}
	if got, want := rig.hostfw.Name(irq), OpsName; got != want {
		t.Fatalf("ops registered as %q, want %q", got, want)
	}
	if rig.hostfw.Ops(irq) == nil {
		t.Fatalf("no operation table claimed for irq %d", irq)
	}

	line := &rig.ctrl.lines[3]
	if line.entry == nil || line.irq != irq {
		t.Fatalf("line 3 not configured: entry=%v irq=%d", line.entry, line.irq)
	}
	if got, want := line.eoiAddr, uint64(testHPA+regEOI); got != want {
		t.Fatalf("eoi addr = %#x, want %#x", got, want)
	}
	if got, want := line.eoiData, line.txnData; got != want {
		t.Fatalf("eoi data = %#x, want txn data %#x", got, want)
	}
}

func TestFixupIsIdempotent(t *testing.T) {
	rig := newTestRig(t, defaultTable())
	dev := rootDevice(4, 1)

	first, err := rig.engine.Fixup(rig.ctrl, dev)
	if err != nil {
		t.Fatalf("first fixup: %v", err)
	}
	second, err := rig.engine.Fixup(rig.ctrl, dev)
	if err != nil {
		t.Fatalf("second fixup: %v", err)
	}
	if first != second {
		t.Fatalf("repeated fixup allocated a new identity: %d then %d", first, second)
	}
	if got, want := rig.hostfw.Claimed(), 1; got != want {
		t.Fatalf("claimed identities = %d, want %d", got, want)
	}
}

func TestFixupSharedLineReusesIdentity(t *testing.T) {
	var b irt.Builder
	// Two slots routed to the same input line.
	b.Vectored(testHPA, 4, 1, 6, irt.PolarityActiveHigh, irt.TriggerEdge)
	b.Vectored(testHPA, 5, 1, 6, irt.PolarityActiveHigh, irt.TriggerEdge)
	rig := newTestRig(t, &b)

	first, err := rig.engine.Fixup(rig.ctrl, rootDevice(4, 1))
	if err != nil {
		t.Fatalf("fixup slot 4: %v", err)
	}
	second, err := rig.engine.Fixup(rig.ctrl, rootDevice(5, 1))
	if err != nil {
		t.Fatalf("fixup slot 5: %v", err)
	}
	if first != second {
		t.Fatalf("shared line double-allocated: %d and %d", first, second)
	}
}

func TestFixupUnroutedDeviceNotConnected(t *testing.T) {
	rig := newTestRig(t, defaultTable())

	_, err := rig.engine.Fixup(rig.ctrl, rootDevice(9, 1))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestFixupDeviceWithoutPinNotConnected(t *testing.T) {
	rig := newTestRig(t, defaultTable())

	_, err := rig.engine.Fixup(rig.ctrl, rootDevice(4, 0))
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestFixupBridgedDevice(t *testing.T) {
	// Bridge at slot 4 on the root bus; the routing table entry keys on
	// the bridge slot and the swizzled pin.
	var b irt.Builder
	b.Vectored(testHPA, 4, 3, 8, irt.PolarityActiveHigh, irt.TriggerEdge)
	rig := newTestRig(t, &b)

	root := &pci.Bus{Number: 0}
	bridge := &pci.Device{Bus: root, Slot: 4}
	sub := &pci.Bus{Number: 1, Parent: root, Bridge: bridge}
	dev := pci.Device{Bus: sub, Slot: 2, Pin: 1} // INTA at slot 2 -> INTC

	irq, err := rig.engine.Fixup(rig.ctrl, dev)
	if err != nil {
		t.Fatalf("fixup: %v", err)
	}
	if rig.ctrl.lines[8].irq != irq {
		t.Fatalf("bridged device did not land on line 8")
	}
}

// failingAlloc fails every identity allocation.
type failingAlloc struct {
	host.IdentityAllocator
}

func (failingAlloc) AllocIRQ(int) (host.IRQ, error) {
	return 0, errors.New("identity space exhausted")
}

func TestFixupIdentityExhaustionIsIsolated(t *testing.T) {
	b := defaultTable()
	model := sapictest.NewModel(16)
	bus := sapictest.NewBus()
	bus.Add(testHPA, model)
	loop := host.NewLoopback(1)

	engine, err := New(Config{
		Firmware:   firmwareFor(b),
		Mapper:     bus,
		Allocator:  failingAlloc{loop},
		Dispatcher: loop,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctrl, err := engine.Register(testHPA)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err = engine.Fixup(ctrl, rootDevice(4, 1))
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("err = %v, want ErrNoIdentity", err)
	}
	// The line must be reclaimable once identities are available again.
	if ctrl.lines[3].entry != nil {
		t.Fatalf("failed fixup left line 3 claimed")
	}
}

// flakyDispatcher fails a scripted number of claims before handing off
// to the loopback host.
type flakyDispatcher struct {
	*host.Loopback
	failures int
}

func (d *flakyDispatcher) ClaimIRQ(irq host.IRQ, name string, ops host.LineOps) error {
	if d.failures > 0 {
		d.failures--
		return errors.New("dispatch table full")
	}
	return d.Loopback.ClaimIRQ(irq, name, ops)
}

func TestFixupClaimFailureRollsBackLine(t *testing.T) {
	b := defaultTable()
	bus := sapictest.NewBus()
	bus.Add(testHPA, sapictest.NewModel(16))
	loop := host.NewLoopback(1)

	engine, err := New(Config{
		Firmware:   firmwareFor(b),
		Mapper:     bus,
		Allocator:  loop,
		Dispatcher: &flakyDispatcher{Loopback: loop, failures: 1},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctrl, err := engine.Register(testHPA)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	dev := rootDevice(4, 1)
	if _, err := engine.Fixup(ctrl, dev); err == nil {
		t.Fatalf("fixup succeeded despite the dispatcher refusing the claim")
	}
	line := &ctrl.lines[3]
	if line.entry != nil || line.irq != 0 {
		t.Fatalf("failed claim left line 3 configured: entry=%v irq=%d", line.entry, line.irq)
	}

	// The retry must configure the line for real, not return a stale
	// identity with no operation table behind it.
	irq, err := engine.Fixup(ctrl, dev)
	if err != nil {
		t.Fatalf("retry fixup: %v", err)
	}
	if loop.Ops(irq) == nil {
		t.Fatalf("retry returned irq %d with no operation table registered", irq)
	}
	if line.irq != irq {
		t.Fatalf("line irq = %d, want %d", line.irq, irq)
	}
}

// quirkRouter satisfies quirk.LegacyRouter with a fixed identity.
type quirkRouter struct{ irq host.IRQ }

func (r quirkRouter) RouteLegacy(pci.Device) (host.IRQ, error) { return r.irq, nil }

func newQuirkRig(t *testing.T, b *irt.Builder) *testRig {
	t.Helper()
	model := sapictest.NewModel(16)
	bus := sapictest.NewBus()
	bus.Add(testHPA, model)
	loop := host.NewLoopback(4)

	engine, err := New(Config{
		Firmware:   firmwareFor(b),
		Mapper:     bus,
		Allocator:  loop,
		Dispatcher: loop,
		Quirks:     quirk.NewTable(quirk.BuiltinRules(), quirkRouter{irq: 31}),
		Logger:     slog.Default(),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	ctrl, err := engine.Register(testHPA)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return &testRig{engine: engine, ctrl: ctrl, model: model, hostfw: loop}
}

func TestFixupQuirkClaim(t *testing.T) {
	rig := newQuirkRig(t, defaultTable())
	dev := rootDevice(4, 1)
	dev.VendorID = 0x100b
	dev.DeviceID = 0x000e // legacy-IO function: fully claimed

	irq, err := rig.engine.Fixup(rig.ctrl, dev)
	if err != nil {
		t.Fatalf("fixup: %v", err)
	}
	if got, want := irq, host.IRQ(31); got != want {
		t.Fatalf("irq = %d, want quirk identity %d", got, want)
	}
	if rig.ctrl.lines[3].entry != nil {
		t.Fatalf("claimed device still programmed a line")
	}
}

func TestFixupQuirkClaimAndProgram(t *testing.T) {
	rig := newQuirkRig(t, defaultTable())
	dev := rootDevice(4, 1)
	dev.VendorID = 0x100b
	dev.DeviceID = 0x0012 // USB function: claimed but still programmed

	irq, err := rig.engine.Fixup(rig.ctrl, dev)
	if err != nil {
		t.Fatalf("fixup: %v", err)
	}
	if irq == 31 {
		t.Fatalf("program path returned the quirk identity instead of the line's")
	}
	if rig.ctrl.lines[3].entry == nil {
		t.Fatalf("USB quirk path skipped line programming")
	}
}
