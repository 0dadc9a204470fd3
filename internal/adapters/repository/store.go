// Package repository defines the queue store interface and its in-memory
// implementation.
package repository

import (
	"context"
	"time"

	"github.com/okian/lineup/internal/domain/model"
)

// Store provides read/write access to lines, counters and entries.
//
// Claim and Release are compare-and-swap operations: they commit only when the
// entry (and counter, for Claim) is still in the expected prior status.
type Store interface {
	// CreateLine registers a line. Returns model.ErrDuplicate for a known id.
	CreateLine(ctx context.Context, line model.Line) (model.Line, error)
	GetLine(ctx context.Context, id string) (model.Line, error)
	ListLines(ctx context.Context) ([]model.Line, error)

	// CreateCounter registers an IDLE counter. Returns model.ErrDuplicate for a
	// known id.
	CreateCounter(ctx context.Context, counter model.Counter) (model.Counter, error)
	GetCounter(ctx context.Context, id string) (model.Counter, error)
	ListCounters(ctx context.Context) ([]model.Counter, error)

	// CreateEntry stores a new WAITING entry. Returns *model.AlreadyActiveError
	// when the subject already has an active entry on the line.
	CreateEntry(ctx context.Context, entry model.QueueEntry) (model.QueueEntry, error)
	GetEntry(ctx context.Context, id string) (model.QueueEntry, error)
	// ListWaiting returns the WAITING entries of a line in no particular order.
	ListWaiting(ctx context.Context, lineID string) ([]model.QueueEntry, error)
	// ListActive returns the WAITING and CALLED entries of a line.
	ListActive(ctx context.Context, lineID string) ([]model.QueueEntry, error)
	// ListCompleted returns up to limit COMPLETED entries of a line, newest
	// serviceCompletedAt first. NO_SHOW entries are never included.
	ListCompleted(ctx context.Context, lineID string, limit int) ([]model.QueueEntry, error)
	// ActiveEntries returns the active entries of a subject across lines,
	// earliest join first.
	ActiveEntries(ctx context.Context, subjectID string) ([]model.QueueEntry, error)

	// Claim moves entryID WAITING->CALLED and counterID IDLE->BUSY together.
	// Returns model.ErrClaimConflict when the entry is no longer WAITING and
	// model.ErrCounterBusy when the counter is BUSY.
	Claim(ctx context.Context, entryID, counterID string, at time.Time) (model.QueueEntry, error)
	// Release moves a CALLED entry to the terminal status to and frees its
	// counter. Returns model.ErrInvalidTransition when the entry is not CALLED.
	Release(ctx context.Context, entryID string, to model.EntryStatus, at time.Time) (model.QueueEntry, error)

	Close() error
}
