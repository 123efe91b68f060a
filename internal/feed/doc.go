// Package feed defines the two logical data blocks a source spreadsheet
// carries and the declarative rules for filtering and mapping their rows
// into the master ledger's column layout.
//
// Each block type owns three pieces of data, all declared in one Spec value:
//
//   - where its data starts (header offset differs per block)
//   - which source columns must be non-empty for a row to count
//   - how source columns and constants land in the master ledger
//
// Dispatch is a single typed lookup (SpecFor); there is no runtime
// reflection and no per-type code path. Validation and mapping are pure
// functions of the Spec and the raw row.
package feed
