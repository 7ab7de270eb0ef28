// irtdump decodes an interrupt routing table image and prints its
// entries, optionally filtered to one controller. With -trace it also
// runs the table through the redirection engine against simulated chips
// and a loopback host, printing the fixup and delivery of every routed
// line.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/perihelion-os/iosapic/internal/host"
	"github.com/perihelion-os/iosapic/internal/irt"
	"github.com/perihelion-os/iosapic/internal/pci"
	"github.com/perihelion-os/iosapic/internal/sapic"
	"github.com/perihelion-os/iosapic/internal/sapictest"
)

func run() error {
	legacy := flag.Bool("legacy", false, "interpret controller addresses with the legacy 32-bit convention")
	hpa := flag.String("hpa", "", "only print entries routing to this controller address (hex)")
	all := flag.Bool("all", false, "print inert entries too")
	trace := flag.Bool("trace", false, "run a simulated fixup of every routed line")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `irtdump - decode an interrupt routing table image

USAGE:
  irtdump [flags] <table-image>

FLAGS:
`)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		return err
	}
	if len(data)%irt.EntrySize != 0 {
		return fmt.Errorf("image size %d is not a multiple of the %d-byte entry size", len(data), irt.EntrySize)
	}
	table, err := irt.Parse(data, len(data)/irt.EntrySize)
	if err != nil {
		return err
	}

	mode := irt.ModeExtended
	if *legacy {
		mode = irt.ModeLegacy
	}
	var filter uint64
	if *hpa != "" {
		filter, err = strconv.ParseUint(*hpa, 0, 64)
		if err != nil {
			return fmt.Errorf("bad -hpa value %q: %w", *hpa, err)
		}
	}

	fmt.Printf("routing table: %d entries (%s addressing)\n", table.Len(), mode)
	printed := 0
	for i, e := range table.Entries() {
		if !e.Vectored() && !*all {
			continue
		}
		if *hpa != "" && !mode.MatchAddr(e.DestControllerAddr, filter) {
			continue
		}
		status := " "
		if !e.Vectored() {
			status = "!"
		}
		polarity, trigger := "high", "edge"
		if e.ActiveLow() {
			polarity = "low"
		}
		if e.LevelTriggered() {
			trigger = "level"
		}
		fmt.Printf("%s %3d: slot %2d pin %d -> line %2d @ %#x (%s/%s)\n",
			status, i, e.Slot(), e.Pin(), e.DestInputLine,
			e.DestControllerAddr, polarity, trigger)
		printed++
	}
	if printed == 0 {
		fmt.Println("no matching entries")
	}

	if *trace {
		return simulate(table, data, mode, filter, *hpa != "")
	}
	return nil
}

// imageFirmware serves the table image back to the engine over the
// dialect matching the chosen addressing mode.
type imageFirmware struct {
	image    []byte
	extended bool
}

func (f *imageFirmware) Extended() bool              { return f.extended }
func (f *imageFirmware) CellNumber() (uint64, error) { return 0, nil }
func (f *imageFirmware) TableSize(uint64) (int, error) {
	return len(f.image) / irt.EntrySize, nil
}

func (f *imageFirmware) FetchTable(_ uint64, buf []byte) error {
	copy(buf, f.image)
	return nil
}

// controllerHPA recovers a controller's physical address from a table
// entry's destination address.
func controllerHPA(entryAddr uint64, mode irt.AddressingMode) uint64 {
	if mode == irt.ModeLegacy {
		return uint64(uint32(entryAddr))
	}
	return entryAddr
}

// simulate stands up one simulated chip per controller named in the
// table, registers them, fixes up a device for every routed line, and
// drives each line through unmask, assert, and acknowledge.
func simulate(table *irt.Table, image []byte, mode irt.AddressingMode, filter uint64, hasFilter bool) error {
	// Size each chip to the highest line the table routes to it.
	lineCount := make(map[uint64]int)
	for _, e := range table.Entries() {
		if !e.Vectored() {
			continue
		}
		addr := controllerHPA(e.DestControllerAddr, mode)
		if n := int(e.DestInputLine) + 1; n > lineCount[addr] {
			lineCount[addr] = n
		}
	}
	if len(lineCount) == 0 {
		fmt.Println("trace: no routed controllers in the table")
		return nil
	}

	bus := sapictest.NewBus()
	models := make(map[uint64]*sapictest.Model)
	for addr, n := range lineCount {
		m := sapictest.NewModel(n)
		m.SetSink(sapictest.SinkFunc(func(msg sapictest.Message) {
			fmt.Printf("trace:   deliver addr=%#x data=%#x\n", msg.Addr, msg.Data)
		}))
		models[addr] = m
		bus.Add(addr, m)
	}

	loop := host.NewLoopback(4)
	engine, err := sapic.New(sapic.Config{
		Firmware:   &imageFirmware{image: image, extended: mode == irt.ModeExtended},
		Mapper:     bus,
		Allocator:  loop,
		Dispatcher: loop,
	})
	if err != nil {
		return fmt.Errorf("trace engine: %w", err)
	}

	ctrls := make(map[uint64]*sapic.Controller)
	for addr := range models {
		if hasFilter && addr != filter {
			continue
		}
		ctrl, err := engine.Register(addr)
		if err != nil {
			return fmt.Errorf("trace register %#x: %w", addr, err)
		}
		ctrls[addr] = ctrl
		fmt.Printf("trace: controller %#x: version %#x, %d lines\n",
			addr, ctrl.Version(), ctrl.NumLines())
	}

	root := &pci.Bus{Number: 0}
	for _, e := range table.Entries() {
		if !e.Vectored() {
			continue
		}
		addr := controllerHPA(e.DestControllerAddr, mode)
		ctrl, ok := ctrls[addr]
		if !ok {
			continue
		}
		dev := pci.Device{Bus: root, Slot: e.Slot(), Pin: e.Pin()}
		irq, err := engine.Fixup(ctrl, dev)
		if err != nil {
			fmt.Printf("trace: %s: %v\n", dev, err)
			continue
		}
		fmt.Printf("trace: %s slot %d pin %d -> line %d irq %d\n",
			dev, e.Slot(), e.Pin(), e.DestInputLine, irq)

		model := models[addr]
		ops := loop.Ops(irq)
		ops.Unmask()
		model.AssertLine(int(e.DestInputLine))
		model.DeassertLine(int(e.DestInputLine))
		ops.Ack()
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "irtdump: %v\n", err)
		os.Exit(1)
	}
}
