package tabular

import (
	"context"
	"fmt"
	"sync"
)

// MemorySheet is a thread-safe in-memory spreadsheet implementing Reader
// and Appender. Tests use it as both source sheets and the master ledger;
// it also backs crash and out-of-band mutation scenarios via the error
// hooks and direct tab access.
type MemorySheet struct {
	mu   sync.Mutex
	tabs map[string][][]string

	// ReadErr and AppendErr, when set, are consulted before each call and
	// may fail it. Used to inject transient remote failures in tests.
	ReadErr   func() error
	AppendErr func() error
}

// NewMemorySheet returns an empty in-memory spreadsheet service.
func NewMemorySheet() *MemorySheet {
	return &MemorySheet{tabs: make(map[string][][]string)}
}

func tabKey(sheetID, tab string) string {
	return sheetID + "\x00" + tab
}

// SetTab replaces the full contents of a tab. Row 1 of the tab is rows[0].
func (m *MemorySheet) SetTab(sheetID, tab string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([][]string, len(rows))
	for i, r := range rows {
		cp[i] = append([]string(nil), r...)
	}
	m.tabs[tabKey(sheetID, tab)] = cp
}

// Rows returns a copy of a tab's contents.
func (m *MemorySheet) Rows(sheetID, tab string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.tabs[tabKey(sheetID, tab)]
	cp := make([][]string, len(src))
	for i, r := range src {
		cp[i] = append([]string(nil), r...)
	}
	return cp
}

// RowCount implements Reader and Appender.
func (m *MemorySheet) RowCount(ctx context.Context, sheetID, tab string) (int64, error) {
	if m.ReadErr != nil {
		if err := m.ReadErr(); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[tabKey(sheetID, tab)]
	if !ok {
		return 0, fmt.Errorf("%w: %q in sheet %q", ErrTabNotFound, tab, sheetID)
	}
	return int64(len(rows)), nil
}

// Width implements Appender: the widest row currently in the tab.
func (m *MemorySheet) Width(ctx context.Context, sheetID, tab string) (int, error) {
	if m.ReadErr != nil {
		if err := m.ReadErr(); err != nil {
			return 0, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[tabKey(sheetID, tab)]
	if !ok {
		return 0, fmt.Errorf("%w: %q in sheet %q", ErrTabNotFound, tab, sheetID)
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	return width, nil
}

// ReadRange implements Reader.
func (m *MemorySheet) ReadRange(ctx context.Context, sheetID, tab string, startRow, endRow int64, maxCol int) ([][]string, error) {
	if m.ReadErr != nil {
		if err := m.ReadErr(); err != nil {
			return nil, err
		}
	}
	if startRow < 1 || endRow < startRow {
		return nil, fmt.Errorf("invalid range %d-%d", startRow, endRow)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tabs[tabKey(sheetID, tab)]
	if !ok {
		return nil, fmt.Errorf("%w: %q in sheet %q", ErrTabNotFound, tab, sheetID)
	}

	var out [][]string
	for r := startRow; r <= endRow && r <= int64(len(rows)); r++ {
		row := rows[r-1]
		if len(row) > maxCol {
			row = row[:maxCol]
		}
		out = append(out, append([]string(nil), row...))
	}
	return out, nil
}

// Append implements Appender.
func (m *MemorySheet) Append(ctx context.Context, sheetID, tab string, rows [][]string) error {
	if m.AppendErr != nil {
		if err := m.AppendErr(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tabKey(sheetID, tab)
	if _, ok := m.tabs[key]; !ok {
		return fmt.Errorf("%w: %q in sheet %q", ErrTabNotFound, tab, sheetID)
	}
	for _, r := range rows {
		m.tabs[key] = append(m.tabs[key], append([]string(nil), r...))
	}
	return nil
}
