package cursor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tclabs/sheetsync/internal/feed"
)

func TestPreparePending_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := Pending{
		SourceID:   "sheet-1",
		Block:      feed.BlockAll,
		FromRow:    4,
		ToRow:      54,
		BatchLen:   37,
		LedgerRows: 120,
	}
	require.NoError(t, s.PreparePending(ctx, p))

	got, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p.SourceID, got[0].SourceID)
	assert.Equal(t, p.Block, got[0].Block)
	assert.Equal(t, p.FromRow, got[0].FromRow)
	assert.Equal(t, p.ToRow, got[0].ToRow)
	assert.Equal(t, p.BatchLen, got[0].BatchLen)
	assert.Equal(t, p.LedgerRows, got[0].LedgerRows)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestPreparePending_ReplacesStaleIntent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-1", Block: feed.BlockAll, FromRow: 4, ToRow: 10, BatchLen: 5, LedgerRows: 100,
	}))
	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-1", Block: feed.BlockAll, FromRow: 4, ToRow: 20, BatchLen: 12, LedgerRows: 101,
	}))

	got, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "one intent per pair")
	assert.Equal(t, int64(20), got[0].ToRow)
	assert.Equal(t, int64(12), got[0].BatchLen)
}

func TestPreparePending_RejectsEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	err := s.PreparePending(context.Background(), Pending{
		SourceID: "sheet-1", Block: feed.BlockAll, FromRow: 4, ToRow: 4, BatchLen: 0,
	})
	require.Error(t, err)
}

// TestCommitPending_AdvancesAndClears exercises the commit point: cursor
// moves and the intent vanishes atomically.
func TestCommitPending_AdvancesAndClears(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CompareAndSet(ctx, "sheet-1", feed.BlockAll, 0, 4)
	require.NoError(t, err)
	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-1", Block: feed.BlockAll, FromRow: 4, ToRow: 54, BatchLen: 30, LedgerRows: 10,
	}))

	swapped, err := s.CommitPending(ctx, "sheet-1", feed.BlockAll, 4, 54)
	require.NoError(t, err)
	assert.True(t, swapped)

	next, _, _ := s.Get(ctx, "sheet-1", feed.BlockAll)
	assert.Equal(t, int64(54), next)

	pend, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pend)
}

// TestCommitPending_LostSwapKeepsIntent verifies the losing writer leaves
// both cursor and intent untouched.
func TestCommitPending_LostSwapKeepsIntent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CompareAndSet(ctx, "sheet-1", feed.BlockAll, 0, 4)
	require.NoError(t, err)
	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-1", Block: feed.BlockAll, FromRow: 4, ToRow: 54, BatchLen: 30, LedgerRows: 10,
	}))

	// Another writer advanced the cursor underneath us.
	_, err = s.CompareAndSet(ctx, "sheet-1", feed.BlockAll, 4, 30)
	require.NoError(t, err)

	swapped, err := s.CommitPending(ctx, "sheet-1", feed.BlockAll, 4, 54)
	require.NoError(t, err)
	assert.False(t, swapped)

	next, _, _ := s.Get(ctx, "sheet-1", feed.BlockAll)
	assert.Equal(t, int64(30), next, "cursor must keep the winner's value")

	pend, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pend, 1, "intent must survive a lost swap")
}

func TestClearPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-1", Block: feed.BlockLinkedIn, FromRow: 3, ToRow: 8, BatchLen: 2, LedgerRows: 7,
	}))
	require.NoError(t, s.ClearPending(ctx, "sheet-1", feed.BlockLinkedIn))

	pend, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pend)

	// Clearing a pair with no intent is a no-op.
	require.NoError(t, s.ClearPending(ctx, "sheet-1", feed.BlockLinkedIn))
}

func TestListPending_OrderedByLedgerRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-2", Block: feed.BlockAll, FromRow: 4, ToRow: 9, BatchLen: 3, LedgerRows: 50,
	}))
	require.NoError(t, s.PreparePending(ctx, Pending{
		SourceID: "sheet-1", Block: feed.BlockAll, FromRow: 4, ToRow: 9, BatchLen: 5, LedgerRows: 45,
	}))

	got, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sheet-1", got[0].SourceID, "lower ledger_rows first")
	assert.Equal(t, "sheet-2", got[1].SourceID)
}
