package sapic

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/irt"
	"github.com/perihelion-os/iosapic/internal/pci"
	"github.com/perihelion-os/iosapic/internal/sapictest"
)

const testHPA = 0xfed30800

// testFirmware serves a pre-built table image over the extended dialect.
type testFirmware struct {
	image   []byte
	entries int
}

func (f *testFirmware) Extended() bool              { return true }
func (f *testFirmware) CellNumber() (uint64, error) { return 0, nil }
func (f *testFirmware) TableSize(uint64) (int, error) {
	if f.entries == 0 {
		return 0, irt.ErrUnsupported
	}
	return f.entries, nil
}

func (f *testFirmware) FetchTable(_ uint64, buf []byte) error {
	copy(buf, f.image)
	return nil
}

func firmwareFor(b *irt.Builder) *testFirmware {
	image := b.Bytes()
	return &testFirmware{image: image, entries: len(image) / irt.EntrySize}
}

// testRig wires an engine to one simulated chip and a loopback host.
type testRig struct {
	engine *Engine
	ctrl   *Controller
	model  *sapictest.Model
	hostfw *host.Loopback
}

func newTestRig(t *testing.T, b *irt.Builder) *testRig {
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

func defaultTable() *irt.Builder {
	var b irt.Builder
	b.Vectored(testHPA, 4, 1, 3, irt.PolarityActiveLow, irt.TriggerLevel)
	b.Vectored(testHPA, 5, 1, 5, irt.PolarityActiveHigh, irt.TriggerEdge)
	return &b
}

func rootDevice(slot uint8, pin uint8) pci.Device {
	return pci.Device{Bus: &pci.Bus{Number: 0}, Slot: slot, Pin: pin}
}

func TestRegisterReadsVersionAndLineCount(t *testing.T) {
	rig := newTestRig(t, defaultTable())

	if got, want := rig.ctrl.NumLines(), 16; got != want {
		t.Fatalf("lines = %d, want %d from version register", got, want)
	}
	if got, want := rig.ctrl.Version(), uint8(0x20); got != want {
		t.Fatalf("version = %#x, want %#x", got, want)
	}
	if got, want := rig.ctrl.HPA(), uint64(testHPA); got != want {
		t.Fatalf("hpa = %#x, want %#x", got, want)
	}
}

func TestRegisterUnknownControllerIsNotPresent(t *testing.T) {
	rig := newTestRig(t, defaultTable())

	ctrl, err := rig.engine.Register(0xdead0000)
	if !errors.Is(err, ErrNotPresent) {
		t.Fatalf("err = %v, want ErrNotPresent", err)
	}
	if ctrl != nil {
		t.Fatalf("absent controller yielded an instance with %d lines", ctrl.NumLines())
	}
}

func TestNewWithoutRoutingTable(t *testing.T) {
	// Firmware without the table capability still yields an engine;
	// every controller then reads as not platform-managed.
	bus := sapictest.NewBus()
	bus.Add(testHPA, sapictest.NewModel(16))
	loop := host.NewLoopback(1)

	engine, err := New(Config{
		Firmware:   &testFirmware{},
		Mapper:     bus,
		Allocator:  loop,
		Dispatcher: loop,
	})
	if err != nil {
		t.Fatalf("engine without table: %v", err)
	}
	if _, err := engine.Register(testHPA); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("err = %v, want ErrNotPresent", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	loop := host.NewLoopback(1)
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no firmware", Config{Mapper: sapictest.NewBus(), Allocator: loop, Dispatcher: loop}},
		{"no mapper", Config{Firmware: &testFirmware{}, Allocator: loop, Dispatcher: loop}},
		{"no allocator", Config{Firmware: &testFirmware{}, Mapper: sapictest.NewBus(), Dispatcher: loop}},
		{"no dispatcher", Config{Firmware: &testFirmware{}, Mapper: sapictest.NewBus(), Allocator: loop}},
	}
	for _, c := range cases {
		if _, err := New(c.cfg); err == nil {
			t.Fatalf("%s: New accepted an incomplete config", c.name)
		}
	}
}
