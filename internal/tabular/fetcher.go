package tabular

import (
	"context"
	"fmt"

	"github.com/tclabs/sheetsync/internal/feed"
)

// Fetcher reads bounded, contiguous row windows from a source block.
//
// The window never exceeds maxRows, bounding the work (and remote quota)
// one invocation can consume. The returned slice is dense: it has exactly
// one entry per row in the window, starting at startRow, with blank rows
// materialized as empty RawRows. That matters for cursor arithmetic - the
// cursor advances by the number of rows returned, so a truncated response
// would stall the cursor on a blank row forever.
type Fetcher struct {
	reader Reader
	maxCol int
}

// NewFetcher wraps a Reader. maxCol bounds how many columns each fetched
// row carries; it must cover the widest column any rule references.
func NewFetcher(r Reader, maxCol int) *Fetcher {
	if maxCol < 1 {
		maxCol = 1
	}
	return &Fetcher{reader: r, maxCol: maxCol}
}

// Fetch returns up to maxRows rows of the block starting at startRow.
// Returns an empty result, without error, when startRow is past the tab's
// last populated row.
func (f *Fetcher) Fetch(ctx context.Context, sheetID, tab string, startRow int64, maxRows int) ([]feed.RawRow, error) {
	if startRow < 1 {
		return nil, fmt.Errorf("fetch %s/%s: start row %d < 1", sheetID, tab, startRow)
	}
	if maxRows < 1 {
		return nil, fmt.Errorf("fetch %s/%s: max rows %d < 1", sheetID, tab, maxRows)
	}

	last, err := f.reader.RowCount(ctx, sheetID, tab)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: row count: %w", sheetID, tab, err)
	}
	if startRow > last {
		return nil, nil
	}

	endRow := startRow + int64(maxRows) - 1
	if endRow > last {
		endRow = last
	}

	raw, err := f.reader.ReadRange(ctx, sheetID, tab, startRow, endRow, f.maxCol)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s rows %d-%d: %w", sheetID, tab, startRow, endRow, err)
	}

	// Densify: one entry per window row, blank rows included.
	window := int(endRow - startRow + 1)
	rows := make([]feed.RawRow, window)
	for i := 0; i < window; i++ {
		if i < len(raw) {
			rows[i] = feed.RawRow(raw[i])
		} else {
			rows[i] = feed.RawRow{}
		}
	}
	return rows, nil
}
