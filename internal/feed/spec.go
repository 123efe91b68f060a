package feed

import (
	"fmt"
	"strings"
)

// masterWidthMin is the minimum canonical row width. The ledger's layout
// reserves columns up to P (16) even though not every mapping reaches it.
const masterWidthMin = 16

// Spec declares how one block type is read, filtered, and mapped. All rules
// are data; the engine never branches on the block type itself.
type Spec struct {
	// Tab is the worksheet title the block lives in inside a source sheet.
	Tab string

	// FirstDataRow is the 1-based row index where data begins. Rows above
	// it are headers and are never fetched.
	FirstDataRow int64

	// Required lists 1-based source columns that must be non-empty
	// (after trimming) for a row to be propagated.
	Required []int

	// Mapping copies source column -> ledger column (both 1-based).
	Mapping map[int]int

	// Statics assigns constant values to ledger columns, independent of any
	// source cell. Applied before Mapping, so a mapped copy to the same
	// destination would win; the declared tables keep the two disjoint.
	Statics map[int]string
}

var specs = map[BlockType]Spec{
	BlockAll: {
		Tab:          "ALL TICKETS (LIVE)",
		FirstDataRow: 4,
		Required:     []int{2, 3}, // B, C
		Mapping: map[int]int{
			1:  1,  // A -> A
			3:  2,  // C -> B
			10: 5,  // J -> E
			2:  6,  // B -> F
			11: 7,  // K -> G
			12: 8,  // L -> H
			4:  16, // D -> P
		},
	},
	BlockLinkedIn: {
		Tab:          "LINKEDIN VIEWS (LIVE)",
		FirstDataRow: 3,
		Required:     []int{2, 3, 4}, // B, C, D
		Mapping: map[int]int{
			1: 1, // A -> A
			2: 6, // B -> F
			3: 2, // C -> B
			5: 8, // E -> H
			4: 3, // D -> C
		},
		Statics: map[int]string{
			5: "LinkedIn - LX",
			7: "DD",
		},
	},
}

// SpecFor returns the declarative rules for a block type. This is the single
// dispatch point for per-type behavior.
func SpecFor(t BlockType) (Spec, error) {
	s, ok := specs[t]
	if !ok {
		return Spec{}, fmt.Errorf("no spec for block type %q", t)
	}
	return s, nil
}

// Valid reports whether the row satisfies the block's validity rule: every
// required column holds a non-blank value. Rows that fail are dropped, not
// retried; their content will not change.
func (s Spec) Valid(row RawRow) bool {
	for _, col := range s.Required {
		if strings.TrimSpace(row.Cell(col)) == "" {
			return false
		}
	}
	return true
}

// Map transforms a raw row into the ledger's column layout, padded with
// empty cells to width. Statics land first, then mapped copies. Mapped
// source cells are copied verbatim, including surrounding whitespace.
func (s Spec) Map(row RawRow, width int) CanonicalRow {
	if width < masterWidthMin {
		width = masterWidthMin
	}
	out := make(CanonicalRow, width)
	for dst, v := range s.Statics {
		if dst >= 1 && dst <= width {
			out[dst-1] = v
		}
	}
	for src, dst := range s.Mapping {
		if dst >= 1 && dst <= width {
			out[dst-1] = row.Cell(src)
		}
	}
	return out
}

// MaxSourceColumn returns the widest source column a fetch must cover to
// evaluate and map a row of this block.
func (s Spec) MaxSourceColumn() int {
	max := 1
	for src := range s.Mapping {
		if src > max {
			max = src
		}
	}
	for _, col := range s.Required {
		if col > max {
			max = col
		}
	}
	return max
}

// MasterWidth returns the canonical row width: the widest ledger column
// referenced by any block's mapping or statics, floored at the ledger's
// reserved minimum. The width is the same regardless of which block produced
// a row, so the canonical schema is stable.
func MasterWidth() int {
	width := masterWidthMin
	for _, s := range specs {
		for _, dst := range s.Mapping {
			if dst > width {
				width = dst
			}
		}
		for dst := range s.Statics {
			if dst > width {
				width = dst
			}
		}
	}
	return width
}

// ColumnLetter converts a 1-based column index to its A1-notation letter
// ("A", "Z", "AA", ...).
func ColumnLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}
