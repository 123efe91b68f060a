package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tclabs/sheetsync/internal/retry"
	"github.com/tclabs/sheetsync/internal/tabular"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 4, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-token", fastPolicy())
}

func TestReadRange_DecodesValues(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"range":  "'ALL TICKETS (LIVE)'!A4:L5",
			"values": [][]any{{"T1", "src", "cat"}, {"T2", 42, nil}},
		})
	})

	rows, err := c.ReadRange(context.Background(), "sheet-1", "ALL TICKETS (LIVE)", 4, 5, 12)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"T1", "src", "cat"}, rows[0])
	assert.Equal(t, []string{"T2", "42", ""}, rows[1], "non-string cells are stringified, nil is empty")
	assert.Contains(t, gotPath, "/v4/spreadsheets/sheet-1/values/")
	assert.Contains(t, gotPath, "A4")
	assert.Contains(t, gotPath, "L5")
}

func TestRowCount_WholeTabExtent(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		assert.Contains(t, r.URL.RawQuery, "majorDimension=ROWS")
		json.NewEncoder(w).Encode(map[string]any{
			"values": [][]any{{"h"}, {"r2"}, {"r3"}, {"r4"}},
		})
	})

	n, err := c.RowCount(context.Background(), "sheet-1", "Tickets")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Contains(t, gotPath, "%27Tickets%27")
	assert.NotContains(t, gotPath, "A:A", "count must cover every column, not just A")
}

// A trailing row whose leading cell is blank is still populated data; it
// must be inside the counted extent or fetch windows never reach it.
func TestRowCount_CountsTrailingBlankLeadingCell(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"values": [][]any{
				{"ALL TICKETS (LIVE)"},
				{},
				{"id", "source", "category"},
				{"T1", "src", "cat"},
				{"", "src2", "cat2"},
			},
		})
	})

	n, err := c.RowCount(context.Background(), "sheet-1", "ALL TICKETS (LIVE)")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestRowCount_EmptyTab(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"range": "Tickets!A1:A1"})
	})

	n, err := c.RowCount(context.Background(), "sheet-1", "Tickets")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWidth_FindsTab(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sheets": []map[string]any{
				{"properties": map[string]any{"title": "Source", "gridProperties": map[string]any{"rowCount": 10, "columnCount": 2}}},
				{"properties": map[string]any{"title": "Tickets", "gridProperties": map[string]any{"rowCount": 900, "columnCount": 26}}},
			},
		})
	})

	w, err := c.Width(context.Background(), "master", "Tickets")
	require.NoError(t, err)
	assert.Equal(t, 26, w)

	_, err = c.Width(context.Background(), "master", "Missing")
	require.ErrorIs(t, err, tabular.ErrTabNotFound)
}

// A range naming an absent worksheet comes back as 400 "Unable to parse
// range"; the client maps that onto the not-found sentinel so callers can
// treat it as an empty block.
func TestReadRange_MissingTabMapsToSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 400, "message": "Unable to parse range: 'LINKEDIN VIEWS (LIVE)'!A3:E10", "status": "INVALID_ARGUMENT"}}`, http.StatusBadRequest)
	})

	_, err := c.ReadRange(context.Background(), "sheet-1", "LINKEDIN VIEWS (LIVE)", 3, 10, 5)
	require.ErrorIs(t, err, tabular.ErrTabNotFound)

	_, err = c.RowCount(context.Background(), "sheet-1", "LINKEDIN VIEWS (LIVE)")
	require.ErrorIs(t, err, tabular.ErrTabNotFound)
}

func TestAppend_PostsRawValues(t *testing.T) {
	var gotBody valueRange
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	err := c.Append(context.Background(), "master", "Tickets", [][]string{{"a", "b"}, {"c", "d"}})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "valueInputOption=RAW")
	assert.Contains(t, gotQuery, "insertDataOption=INSERT_ROWS")
	require.Len(t, gotBody.Values, 2)
	assert.Equal(t, []any{"a", "b"}, gotBody.Values[0])
}

func TestAppend_NoRowsNoCall(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })

	require.NoError(t, c.Append(context.Background(), "master", "Tickets", nil))
	assert.Zero(t, calls)
}

// TestDo_RetriesThrottling verifies 429 responses are retried until the
// service recovers.
func TestDo_RetriesThrottling(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, `{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"values": [][]any{{"x"}}})
	})

	n, err := c.RowCount(context.Background(), "sheet-1", "Tickets")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 3, calls)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "backend error", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"values": [][]any{{"x"}, {"y"}}})
	})

	n, err := c.RowCount(context.Background(), "sheet-1", "Tickets")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, calls)
}

// TestDo_TerminalStatusFailsFast verifies auth failures are not retried.
func TestDo_TerminalStatusFailsFast(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := c.RowCount(context.Background(), "sheet-1", "Tickets")
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, retry.IsRetryable(err))
}

func TestDo_ExhaustedRetriesStayRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	})

	_, err := c.RowCount(context.Background(), "sheet-1", "Tickets")
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err), "exhausted throttling must stay a transient failure")
}

func TestRangeRef_QuotesTabTitles(t *testing.T) {
	ref := rangeRef("ALL TICKETS (LIVE)", 4, 53, 12)
	assert.Equal(t, "'ALL TICKETS (LIVE)'!A4:L53", ref)

	assert.Equal(t, "'it''s'!A1:C2", rangeRef("it's", 1, 2, 3))
	assert.True(t, strings.HasPrefix(quoteTab("Tickets"), "'"))
}
