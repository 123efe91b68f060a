// Package registry enumerates the source spreadsheets a run should copy
// from. The canonical registry is a tab inside the master spreadsheet
// (names in column A, sheet URLs or IDs in column B, data from row 2); a
// static list exists for tests and one-off invocations.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tclabs/sheetsync/internal/feed"
	"github.com/tclabs/sheetsync/internal/tabular"
)

// Source identifies one contributing spreadsheet.
type Source struct {
	ID   string // spreadsheet identifier (never a URL)
	Name string // display name; falls back to the ID
}

// Registry yields the ordered list of active sources. Read once per run;
// the order determines shard assignment, so it must be stable between runs
// for sharding to partition cleanly.
type Registry interface {
	Sources(ctx context.Context) ([]Source, error)
}

var sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// ParseSheetID extracts the spreadsheet ID from a docs URL, or returns the
// trimmed input when it is already a bare ID.
func ParseSheetID(s string) string {
	if m := sheetURLPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}

// Sheet reads sources from the master spreadsheet's source tab.
type Sheet struct {
	reader        tabular.Reader
	spreadsheetID string
	tab           string
}

// NewSheet creates a registry over the given source tab.
func NewSheet(r tabular.Reader, spreadsheetID, tab string) *Sheet {
	return &Sheet{reader: r, spreadsheetID: spreadsheetID, tab: tab}
}

// Sources implements Registry. Rows with a blank URL/ID cell are skipped;
// row 1 is the header.
func (s *Sheet) Sources(ctx context.Context) ([]Source, error) {
	last, err := s.reader.RowCount(ctx, s.spreadsheetID, s.tab)
	if err != nil {
		return nil, fmt.Errorf("source registry %s/%s: %w", s.spreadsheetID, s.tab, err)
	}
	if last < 2 {
		return nil, nil
	}

	rows, err := s.reader.ReadRange(ctx, s.spreadsheetID, s.tab, 2, last, 2)
	if err != nil {
		return nil, fmt.Errorf("source registry %s/%s: %w", s.spreadsheetID, s.tab, err)
	}

	var out []Source
	for _, r := range rows {
		row := feed.RawRow(r)
		ref := strings.TrimSpace(row.Cell(2))
		if ref == "" {
			continue
		}
		src := Source{ID: ParseSheetID(ref), Name: strings.TrimSpace(row.Cell(1))}
		if src.Name == "" {
			src.Name = src.ID
		}
		out = append(out, src)
	}
	return out, nil
}

// Static is a fixed source list.
type Static []Source

// Sources implements Registry.
func (s Static) Sources(ctx context.Context) ([]Source, error) {
	out := make([]Source, len(s))
	copy(out, s)
	return out, nil
}
