package sapic

import (
	"fmt"
	"log/slog"
)

// Diagnostic dumps. These are not part of the operational contract; they
// write through the engine's logger at Debug level.

// DumpTable logs every routing-table entry, inert ones included.
func (e *Engine) DumpTable() {
	entries := e.table.Entries()
	e.logger.Debug("iosapic: routing table", "entries", len(entries), "mode", e.mode.String())
	for i := range entries {
		e.logger.Debug("iosapic: " + entries[i].String())
	}
}

// DumpLines logs the state of every configured line of the controller.
func (c *Controller) DumpLines() {
	log := c.engine.logger
	log.Debug("iosapic: controller",
		"hpa", fmt.Sprintf("%#x", c.hpa),
		"version", c.Version(),
		"lines", len(c.lines))
	for i := range c.lines {
		l := &c.lines[i]
		if l.entry == nil {
			continue
		}
		log.Debug("iosapic: line",
			slog.Int("line", int(l.index)),
			slog.Any("irq", uint32(l.irq)),
			slog.String("txn_addr", fmt.Sprintf("%#x", l.txnAddr)),
			slog.String("txn_data", fmt.Sprintf("%#x", l.txnData)),
			slog.String("eoi_addr", fmt.Sprintf("%#x", l.eoiAddr)),
			slog.String("eoi_data", fmt.Sprintf("%#x", l.eoiData)))
	}
}
