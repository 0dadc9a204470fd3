// Package ordering defines the total order over waiting entries of a line.
//
// Ordering: score DESC, then joinedAt ASC, then id ASC (deterministic).
// Every comparison inside one query must use the same now.
package ordering

import (
	"slices"
	"time"

	"github.com/okian/lineup/internal/domain/model"
	"github.com/okian/lineup/internal/domain/scoring"
)

// Scorer is the subset of scoring.Calculator the policy needs.
type Scorer interface {
	Score(in scoring.Input, now time.Time) int
}

// Policy ranks entries of a single line.
type Policy struct {
	scorer Scorer
}

// New creates a policy on top of scorer. A nil scorer uses the production
// weights.
func New(scorer Scorer) *Policy {
	if scorer == nil {
		scorer = scoring.New()
	}
	return &Policy{scorer: scorer}
}

// Ranked pairs an entry with the score it had at the snapshot time.
type Ranked struct {
	Entry model.QueueEntry
	Score int
}

// less reports whether a ranks strictly before b.
func less(a, b *Ranked) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Entry.JoinedAt.Equal(b.Entry.JoinedAt) {
		return a.Entry.JoinedAt.Before(b.Entry.JoinedAt)
	}
	return a.Entry.ID < b.Entry.ID
}

func cmp(a, b *Ranked) int {
	switch {
	case less(a, b):
		return -1
	case less(b, a):
		return 1
	default:
		return 0
	}
}

// Compare returns a negative number when a ranks first, a positive number when
// b ranks first and 0 on a full tie.
func (p *Policy) Compare(a, b *model.QueueEntry, deadlineAt *time.Time, now time.Time) int {
	ra := p.rank(a, deadlineAt, now)
	rb := p.rank(b, deadlineAt, now)
	return cmp(&ra, &rb)
}

func (p *Policy) rank(e *model.QueueEntry, deadlineAt *time.Time, now time.Time) Ranked {
	return Ranked{Entry: *e, Score: p.scorer.Score(scoring.InputFor(e, deadlineAt), now)}
}

// Sort scores every entry once at now and returns them best first.
// The input slice is not modified.
func (p *Policy) Sort(entries []model.QueueEntry, deadlineAt *time.Time, now time.Time) []Ranked {
	out := make([]Ranked, len(entries))
	for i := range entries {
		out[i] = p.rank(&entries[i], deadlineAt, now)
	}
	slices.SortFunc(out, func(a, b Ranked) int { return cmp(&a, &b) })
	return out
}

// Top returns the entry ranking first among waiting, and false when there is
// none. It is linear in len(waiting).
func (p *Policy) Top(waiting []model.QueueEntry, deadlineAt *time.Time, now time.Time) (Ranked, bool) {
	var best Ranked
	found := false
	for i := range waiting {
		if waiting[i].Status != model.StatusWaiting {
			continue
		}
		r := p.rank(&waiting[i], deadlineAt, now)
		if !found || less(&r, &best) {
			best = r
			found = true
		}
	}
	return best, found
}

// Position counts the WAITING entries of target's line that rank strictly
// ahead of target at now. target itself and entries of other lines are
// ignored.
func (p *Policy) Position(target *model.QueueEntry, waiting []model.QueueEntry, deadlineAt *time.Time, now time.Time) int {
	t := p.rank(target, deadlineAt, now)
	ahead := 0
	for i := range waiting {
		e := &waiting[i]
		if e.ID == target.ID || e.LineID != target.LineID || e.Status != model.StatusWaiting {
			continue
		}
		r := p.rank(e, deadlineAt, now)
		if less(&r, &t) {
			ahead++
		}
	}
	return ahead
}
