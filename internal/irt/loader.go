package irt

import (
	"errors"
	"fmt"
	"log/slog"
	"unsafe"
)

// ErrUnsupported is returned by Firmware.TableSize when the firmware does
// not implement the routing-table call at all. The loader treats it as a
// capability absence, not a failure: resolution is simply disabled.
var ErrUnsupported = errors.New("irt: routing table call not supported")

// ErrFirmwareInconsistent marks firmware contract violations with no safe
// fallback: a size call that succeeds but reports zero entries, or a
// fetch that fails after a successful size call. Bring-up cannot continue
// past one of these.
var ErrFirmwareInconsistent = errors.New("irt: firmware inconsistency")

// Firmware is the routing-table provider. Exactly one of two dialects is
// active, probed once via Extended:
//
//   - extended: per-cell tables, sized then fetched; the size call must
//     succeed and report a non-zero count.
//   - legacy: one platform-wide table; a failing size call means the
//     platform has no routing table and is not an error.
type Firmware interface {
	// Extended reports which dialect the firmware speaks. Called once by
	// the loader; the answer must not change afterwards.
	Extended() bool

	// CellNumber returns the caller's cell number under the extended
	// dialect. Non-cellular platforms return 0.
	CellNumber() (uint64, error)

	// TableSize returns the number of routing entries for cell.
	TableSize(cell uint64) (int, error)

	// FetchTable fills buf with the wire-format table for cell. The
	// buffer is 8-byte aligned.
	FetchTable(cell uint64, buf []byte) error
}

// Loader fetches the routing table, committing to one firmware dialect at
// construction.
type Loader struct {
	fw       Firmware
	extended bool
	logger   *slog.Logger

	// legacy dialect: one platform-wide table, a second load is a no-op.
	legacy *Table
}

// NewLoader probes the firmware dialect and returns a loader committed to
// it.
func NewLoader(fw Firmware, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fw: fw, extended: fw.Extended(), logger: logger}
}

// Extended reports the dialect the loader committed to.
func (l *Loader) Extended() bool { return l.extended }

// Mode returns the addressing mode implied by the firmware dialect.
func (l *Loader) Mode() AddressingMode {
	if l.extended {
		return ModeExtended
	}
	return ModeLegacy
}

// LoadCurrentCell loads the routing table for the cell the caller runs
// on. Under the legacy dialect there is no cell concept and cell 0 is
// used; under the extended dialect the cell number is queried from
// firmware, defaulting to 0 when the query fails (non-cellular platform).
func (l *Loader) LoadCurrentCell() (*Table, error) {
	var cell uint64
	if l.extended {
		if n, err := l.fw.CellNumber(); err == nil {
			cell = n
		}
	}
	return l.Load(cell)
}

// Load fetches and decodes the routing table for cell. An empty table
// with a nil error means the capability is absent: firmware never
// published a table and dynamic resolution is disabled platform-wide.
func (l *Loader) Load(cell uint64) (*Table, error) {
	if l.extended {
		return l.loadExtended(cell)
	}
	return l.loadLegacy()
}

func (l *Loader) loadExtended(cell uint64) (*Table, error) {
	n, err := l.fw.TableSize(cell)
	if errors.Is(err, ErrUnsupported) {
		l.logger.Info("irt: firmware has no routing table", "cell", cell)
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: size call failed for cell %d: %v", ErrFirmwareInconsistent, cell, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: size call reported zero entries for cell %d", ErrFirmwareInconsistent, cell)
	}
	buf := alignedBuffer(n * EntrySize)
	if err := l.fw.FetchTable(cell, buf); err != nil {
		return nil, fmt.Errorf("%w: fetch failed for cell %d after size %d: %v", ErrFirmwareInconsistent, cell, n, err)
	}
	l.logger.Debug("irt: loaded routing table", "cell", cell, "entries", n)
	return Parse(buf, n)
}

func (l *Loader) loadLegacy() (*Table, error) {
	// Legacy firmware returns exactly one table for all controllers, so
	// a reload just hands back the table already loaded.
	if l.legacy != nil {
		return l.legacy, nil
	}
	n, err := l.fw.TableSize(0)
	if err != nil {
		// Not a platform with a routing table either; static firmware
		// programming is assumed.
		l.logger.Info("irt: legacy firmware has no routing table", "err", err)
		return &Table{}, nil
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: legacy size call reported zero entries", ErrFirmwareInconsistent)
	}
	buf := alignedBuffer(n * EntrySize)
	if err := l.fw.FetchTable(0, buf); err != nil {
		return nil, fmt.Errorf("%w: legacy fetch failed after size %d: %v", ErrFirmwareInconsistent, n, err)
	}
	t, err := Parse(buf, n)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("irt: loaded legacy routing table", "entries", n)
	l.legacy = t
	return t, nil
}

// alignedBuffer returns an n-byte slice whose base is 8-byte aligned. The
// firmware fetch call requires 8-byte alignment, which a plain byte slice
// does not guarantee on all configurations.
func alignedBuffer(n int) []byte {
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}
