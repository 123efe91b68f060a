// Package rest implements the tabular interfaces against a spreadsheet
// values HTTP API (Google Sheets v4 wire shape). Every remote call is
// wrapped in bounded retry with backoff; throttling responses (429) and
// server errors are retried, everything else fails the call.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/retry"
	"github.com/tclabs/sheetsync/internal/tabular"
)

// Client talks to a spreadsheet values API. It implements both
// tabular.Reader and tabular.Appender.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Policy  retry.Policy
}

// New creates a client for the given API base URL (no trailing slash)
// authenticating with a bearer token.
func New(baseURL, token string, policy retry.Policy) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 2 * time.Minute},
		Policy:  policy,
	}
}

// APIError carries the status and body of a non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets api: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body))
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 600 {
		return s[:600] + "..."
	}
	return s
}

// tabNotFound detects the values API's response to a range naming a
// worksheet that does not exist: HTTP 400 with "Unable to parse range" in
// the error message.
func tabNotFound(err *APIError) bool {
	return err.StatusCode == http.StatusBadRequest && bytes.Contains(err.Body, []byte("Unable to parse range"))
}

// retryableStatus mirrors the throttling/server-error conditions the sync
// has historically had to ride out: 429 quota, 408, and any 5xx.
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout {
		return true
	}
	return code >= 500 && code <= 599
}

type valueRange struct {
	Range  string  `json:"range,omitempty"`
	Values [][]any `json:"values,omitempty"`
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			Title          string `json:"title"`
			GridProperties struct {
				RowCount    int64 `json:"rowCount"`
				ColumnCount int   `json:"columnCount"`
			} `json:"gridProperties"`
		} `json:"properties"`
	} `json:"sheets"`
}

// quoteTab renders a tab title for A1 notation. Titles with anything beyond
// plain identifiers must be single-quoted, with embedded quotes doubled.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func rangeRef(tab string, startRow, endRow int64, maxCol int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteTab(tab), startRow, feed.ColumnLetter(maxCol), endRow)
}

// ReadRange implements tabular.Reader.
func (c *Client) ReadRange(ctx context.Context, sheetID, tab string, startRow, endRow int64, maxCol int) ([][]string, error) {
	ref := rangeRef(tab, startRow, endRow, maxCol)
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s?majorDimension=ROWS", url.PathEscape(sheetID), url.PathEscape(ref))

	var vr valueRange
	if err := c.getJSON(ctx, path, &vr); err != nil {
		return nil, fmt.Errorf("read %s %s: %w", sheetID, ref, err)
	}
	return stringValues(vr.Values), nil
}

// RowCount implements tabular.Reader and tabular.Appender: the populated
// row extent of the tab. The whole grid is consulted rather than a single
// column; a row counts as long as any cell in it holds a value, and feeds
// legitimately carry rows whose leading cell is blank. The values API trims
// trailing empty rows, so the response length is the last populated row.
func (c *Client) RowCount(ctx context.Context, sheetID, tab string) (int64, error) {
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s?majorDimension=ROWS", url.PathEscape(sheetID), url.PathEscape(quoteTab(tab)))

	var vr valueRange
	if err := c.getJSON(ctx, path, &vr); err != nil {
		return 0, fmt.Errorf("row count %s/%s: %w", sheetID, tab, err)
	}
	return int64(len(vr.Values)), nil
}

// Width implements tabular.Appender: the tab's grid column count.
func (c *Client) Width(ctx context.Context, sheetID, tab string) (int, error) {
	path := fmt.Sprintf("/v4/spreadsheets/%s?fields=sheets.properties", url.PathEscape(sheetID))

	var meta spreadsheetMeta
	if err := c.getJSON(ctx, path, &meta); err != nil {
		return 0, fmt.Errorf("width %s/%s: %w", sheetID, tab, err)
	}
	for _, s := range meta.Sheets {
		if s.Properties.Title == tab {
			return s.Properties.GridProperties.ColumnCount, nil
		}
	}
	return 0, fmt.Errorf("width %s/%s: %w", sheetID, tab, tabular.ErrTabNotFound)
}

// Append implements tabular.Appender. RAW input keeps cell values verbatim;
// INSERT_ROWS guarantees the batch lands after the last row as one block.
func (c *Client) Append(ctx context.Context, sheetID, tab string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	ref := quoteTab(tab) + "!A1"
	path := fmt.Sprintf("/v4/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		url.PathEscape(sheetID), url.PathEscape(ref))

	body := valueRange{Values: anyValues(rows)}
	if err := c.postJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("append %d rows to %s/%s: %w", len(rows), sheetID, tab, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	return retry.Do(ctx, c.Policy, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
		if err != nil {
			return err
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			// Transport-level failures (resets, timeouts) are worth retrying.
			return retry.Mark(err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return retry.Mark(fmt.Errorf("read response: %w", readErr))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Method: method, URL: req.URL.String(), StatusCode: resp.StatusCode, Body: respBody}
			if retryableStatus(resp.StatusCode) {
				return retry.Mark(apiErr)
			}
			if tabNotFound(apiErr) {
				return fmt.Errorf("%w: %v", tabular.ErrTabNotFound, apiErr)
			}
			return apiErr
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w body=%s", err, snippet(respBody))
			}
		}
		return nil
	})
}

// stringValues flattens the API's loosely typed cells into strings. The
// sync treats every cell as opaque text.
func stringValues(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			if s, ok := v.(string); ok {
				cells[j] = s
			} else if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		out[i] = cells
	}
	return out
}

func anyValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}
