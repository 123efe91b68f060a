package feed

import "fmt"

// BlockType identifies one of the two logical feeds inside a source
// spreadsheet. Each type carries its own header offset, validity rule,
// mapping rule, and an independent sync cursor.
type BlockType string

const (
	// BlockAll is the tickets feed ("ALL TICKETS (LIVE)"); data starts at row 4.
	BlockAll BlockType = "ALL"

	// BlockLinkedIn is the LinkedIn-views feed ("LINKEDIN VIEWS (LIVE)");
	// data starts at row 3.
	BlockLinkedIn BlockType = "LI"
)

// Blocks returns every block type in processing order. The order is fixed:
// the tickets feed is drained before the LinkedIn feed, matching the order
// the ledger's consumers expect new rows to arrive in.
func Blocks() []BlockType {
	return []BlockType{BlockAll, BlockLinkedIn}
}

// Valid reports whether t is a known block type.
func (t BlockType) Valid() bool {
	switch t {
	case BlockAll, BlockLinkedIn:
		return true
	}
	return false
}

// ParseBlockType converts a stored block identifier back into a BlockType.
func ParseBlockType(s string) (BlockType, error) {
	t := BlockType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown block type %q", s)
	}
	return t, nil
}

// RawRow is one row of cell values as read from a source block. Rows are
// sparse: trailing empty cells may be absent entirely, so access goes
// through Cell rather than direct indexing.
type RawRow []string

// Cell returns the value at the 1-based column index, or "" when the row
// is too short to hold it.
func (r RawRow) Cell(col int) string {
	if col < 1 || col > len(r) {
		return ""
	}
	return r[col-1]
}

// CanonicalRow is a row already transformed into the master ledger's column
// layout. Positions correspond exactly to ledger columns; unmapped positions
// hold empty strings.
type CanonicalRow []string
