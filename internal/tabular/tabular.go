// Package tabular defines the narrow interfaces the sync engine needs from
// remote tabular storage, plus the chunked fetcher that reads bounded row
// windows through them. The engine never talks to a spreadsheet API
// directly; everything goes through Reader and Appender so the correctness
// argument does not depend on the storage technology.
package tabular

import (
	"context"
	"errors"
)

// ErrTabNotFound reports that a referenced worksheet does not exist in the
// spreadsheet. Not every source carries every block's tab, so callers
// treat this as "nothing to read" rather than a failure.
var ErrTabNotFound = errors.New("tab not found")

// Reader reads cell data from one tab of a spreadsheet.
type Reader interface {
	// RowCount returns the index of the tab's last populated row (0 when
	// the tab is empty).
	RowCount(ctx context.Context, sheetID, tab string) (int64, error)

	// ReadRange returns the rows in [startRow, endRow] (1-based,
	// inclusive), each clipped to maxCol columns. Trailing empty rows and
	// cells may be omitted; callers that need a dense window must pad.
	ReadRange(ctx context.Context, sheetID, tab string, startRow, endRow int64, maxCol int) ([][]string, error)
}

// Appender appends rows to one tab of a spreadsheet. Appends land strictly
// after the tab's current last row; existing rows are never touched.
type Appender interface {
	// RowCount returns the index of the tab's last populated row. The
	// engine compares it against its own bookkeeping before every append
	// to detect out-of-band mutation.
	RowCount(ctx context.Context, sheetID, tab string) (int64, error)

	// Width returns the tab's column count, so appended rows can be padded
	// to the ledger's existing width.
	Width(ctx context.Context, sheetID, tab string) (int, error)

	// Append appends rows after the tab's last row as one contiguous block.
	Append(ctx context.Context, sheetID, tab string, rows [][]string) error
}
