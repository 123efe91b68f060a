package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSpecFor_KnownBlocks verifies the typed lookup returns the declared
// tables for both block types.
func TestSpecFor_KnownBlocks(t *testing.T) {
	all, err := SpecFor(BlockAll)
	require.NoError(t, err)
	assert.Equal(t, "ALL TICKETS (LIVE)", all.Tab)
	assert.Equal(t, int64(4), all.FirstDataRow)
	assert.Equal(t, []int{2, 3}, all.Required)
	assert.Empty(t, all.Statics)

	li, err := SpecFor(BlockLinkedIn)
	require.NoError(t, err)
	assert.Equal(t, "LINKEDIN VIEWS (LIVE)", li.Tab)
	assert.Equal(t, int64(3), li.FirstDataRow)
	assert.Equal(t, []int{2, 3, 4}, li.Required)
	assert.Equal(t, "LinkedIn - LX", li.Statics[5])
	assert.Equal(t, "DD", li.Statics[7])
}

func TestSpecFor_UnknownBlock(t *testing.T) {
	_, err := SpecFor(BlockType("BOGUS"))
	require.Error(t, err)
}

func TestParseBlockType(t *testing.T) {
	got, err := ParseBlockType("ALL")
	require.NoError(t, err)
	assert.Equal(t, BlockAll, got)

	got, err = ParseBlockType("LI")
	require.NoError(t, err)
	assert.Equal(t, BlockLinkedIn, got)

	_, err = ParseBlockType("all")
	require.Error(t, err)
}

// TestSpec_Valid covers the per-block validity rules, including sparse rows
// and whitespace-only cells.
func TestSpec_Valid(t *testing.T) {
	all, _ := SpecFor(BlockAll)
	li, _ := SpecFor(BlockLinkedIn)

	tests := []struct {
		name string
		spec Spec
		row  RawRow
		want bool
	}{
		{"all both present", all, RawRow{"x", "src", "cat"}, true},
		{"all missing C", all, RawRow{"x", "src", ""}, false},
		{"all whitespace C", all, RawRow{"x", "src", "   "}, false},
		{"all short row", all, RawRow{"x", "src"}, false},
		{"all empty row", all, RawRow{}, false},
		{"li all present", li, RawRow{"a", "b", "c", "d"}, true},
		{"li missing D", li, RawRow{"a", "b", "c"}, false},
		{"li missing B", li, RawRow{"a", "", "c", "d"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.spec.Valid(tt.row))
		})
	}
}

// TestSpec_Map_AllBlock checks the tickets mapping against a fully
// populated row: A->1, C->2, J->5, B->6, K->7, L->8, D->16.
func TestSpec_Map_AllBlock(t *testing.T) {
	spec, _ := SpecFor(BlockAll)
	row := RawRow{"T1", "src", "cat", "2024", "", "", "", "", "", "note", "x", "y"}

	got := spec.Map(row, MasterWidth())
	require.Len(t, got, 16)

	want := CanonicalRow{"T1", "cat", "", "", "note", "src", "x", "y", "", "", "", "", "", "", "", "2024"}
	assert.Equal(t, want, got)
}

// TestSpec_Map_LinkedInStatics checks that the LinkedIn statics land at E(5)
// and G(7) regardless of source content, alongside the mapped copies.
func TestSpec_Map_LinkedInStatics(t *testing.T) {
	spec, _ := SpecFor(BlockLinkedIn)
	row := RawRow{"L1", "5", "7", "3", "unused"}

	got := spec.Map(row, MasterWidth())
	require.Len(t, got, 16)

	assert.Equal(t, "L1", got[0])            // A -> A
	assert.Equal(t, "7", got[1])             // C -> B
	assert.Equal(t, "3", got[2])             // D -> C
	assert.Equal(t, "LinkedIn - LX", got[4]) // static E
	assert.Equal(t, "5", got[5])             // B -> F
	assert.Equal(t, "DD", got[6])            // static G
	assert.Equal(t, "unused", got[7])        // E -> H
	for i := 8; i < 16; i++ {
		assert.Empty(t, got[i], "column %d should be empty", i+1)
	}
}

// TestSpec_Map_SparseRow verifies mapping a row shorter than its widest
// mapped source column pads with empty strings instead of panicking.
func TestSpec_Map_SparseRow(t *testing.T) {
	spec, _ := SpecFor(BlockAll)
	row := RawRow{"T2", "src", "cat"} // columns D..L absent

	got := spec.Map(row, MasterWidth())
	require.Len(t, got, 16)
	assert.Equal(t, "T2", got[0])
	assert.Equal(t, "cat", got[1])
	assert.Equal(t, "src", got[5])
	assert.Empty(t, got[15]) // D -> P, absent
}

// TestSpec_Map_WiderLedger verifies padding extends to a ledger that is
// already wider than the mapped columns.
func TestSpec_Map_WiderLedger(t *testing.T) {
	spec, _ := SpecFor(BlockAll)
	got := spec.Map(RawRow{"T3", "src", "cat"}, 22)
	assert.Len(t, got, 22)
}

// TestSpec_Map_NarrowWidthFloored verifies a width below the reserved
// minimum is raised to it, so column P is always addressable.
func TestSpec_Map_NarrowWidthFloored(t *testing.T) {
	spec, _ := SpecFor(BlockAll)
	got := spec.Map(RawRow{"T4", "src", "cat", "2024"}, 4)
	require.Len(t, got, 16)
	assert.Equal(t, "2024", got[15])
}

func TestMasterWidth(t *testing.T) {
	// Widest destination across both blocks is P (16), which equals the floor.
	assert.Equal(t, 16, MasterWidth())
}

func TestSpec_MaxSourceColumn(t *testing.T) {
	all, _ := SpecFor(BlockAll)
	li, _ := SpecFor(BlockLinkedIn)
	assert.Equal(t, 12, all.MaxSourceColumn()) // L
	assert.Equal(t, 5, li.MaxSourceColumn())   // E
}

func TestRawRow_Cell(t *testing.T) {
	row := RawRow{"a", "b"}
	assert.Equal(t, "a", row.Cell(1))
	assert.Equal(t, "b", row.Cell(2))
	assert.Empty(t, row.Cell(3))
	assert.Empty(t, row.Cell(0))
	assert.Empty(t, row.Cell(-1))
}

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{1, "A"}, {2, "B"}, {26, "Z"}, {27, "AA"}, {28, "AB"}, {52, "AZ"}, {53, "BA"}, {702, "ZZ"}, {703, "AAA"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColumnLetter(tt.col), "col %d", tt.col)
	}
}

func TestBlocks_Order(t *testing.T) {
	assert.Equal(t, []BlockType{BlockAll, BlockLinkedIn}, Blocks())
}
