// Package cursor is the durable record of synchronization progress.
//
// For every (source, block) pair it stores the next unread row index. The
// cursor is the sole source of truth for what has already been copied into
// the master ledger: it is created when a pair is first seen, only ever
// moves forward, and advances strictly after the corresponding append has
// been acknowledged.
//
// Updates go through a compare-and-swap so that an overlapping run can
// never advance a cursor it did not read: the losing writer's swap is
// rejected and its work is discarded without touching the ledger state.
//
// The store also keeps an append intent log. Before a batch is appended to
// the ledger the engine records what it is about to do (cursor window,
// batch length, ledger row count at that moment); committing the cursor
// deletes the intent in the same transaction. An intent that survives a
// crash tells the next run whether the append landed, which is what turns
// at-least-once appends into effectively-exactly-once.
//
// Storage is a single SQLite database in WAL mode with one writer
// connection. Every mutation is a single statement or transaction, so no
// partial write is ever observable.
package cursor
