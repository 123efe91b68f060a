// Package engine drives one synchronization run: for every registered
// source and block type it fetches a bounded chunk of unread rows,
// validates and maps them, appends the survivors to the master ledger, and
// only then advances the pair's cursor.
//
// The ordering invariant everything hangs on: append is acknowledged
// before the cursor moves, and the cursor moves past every examined row
// (valid or not) in one compare-and-swap. A run interrupted anywhere
// before that swap produces no progress for the pair. Because every
// append is preceded by a durable intent record, the next run can tell
// whether an interrupted append landed and either commit or discard it
// without duplicating a row.
//
// Pairs are independent. They may run on parallel workers, a failure in
// one never aborts the others, and a failed pair simply keeps its cursor
// and is retried by the next scheduled run.
package engine
