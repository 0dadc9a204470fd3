package assignment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/internal/domain/assignment"
	"github.com/okian/lineup/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (r *recorder) Publish(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recorder) kinds() []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.NotificationKind, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.Kind
	}
	return out
}

// stealingStore lets a rival counter take the chosen entry right before the
// manager commits, for the first steals claims.
type stealingStore struct {
	*repository.MemoryStore
	rival  string
	steals int
}

func (s *stealingStore) Claim(ctx context.Context, entryID, counterID string, at time.Time) (model.QueueEntry, error) {
	if s.steals > 0 {
		s.steals--
		rival := fmt.Sprintf("%s-%d", s.rival, s.steals)
		_, _ = s.MemoryStore.CreateCounter(ctx, model.Counter{ID: rival})
		_, _ = s.MemoryStore.Claim(ctx, entryID, rival, at)
	}
	return s.MemoryStore.Claim(ctx, entryID, counterID, at)
}

func seed(ctx context.Context, s *repository.MemoryStore, counters int, entries ...model.QueueEntry) {
	far := t0.Add(24 * time.Hour)
	_, err := s.CreateLine(ctx, model.Line{ID: "line-1", DeadlineAt: &far})
	So(err, ShouldBeNil)
	for i := 1; i <= counters; i++ {
		_, err := s.CreateCounter(ctx, model.Counter{ID: fmt.Sprintf("c%d", i)})
		So(err, ShouldBeNil)
	}
	for _, e := range entries {
		_, err := s.CreateEntry(ctx, e)
		So(err, ShouldBeNil)
	}
}

func entry(id string, class model.ServiceClass, joined time.Time) model.QueueEntry {
	return model.QueueEntry{
		ID:           id,
		SubjectID:    "subject-" + id,
		LineID:       "line-1",
		ServiceClass: class,
		JoinedAt:     joined,
		Status:       model.StatusWaiting,
	}
}

func clock() time.Time { return t0.Add(time.Minute) }

func TestManager_ClaimNext(t *testing.T) {
	Convey("Given a line with a standard and a premium entry", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store, 2,
			entry("a", model.ClassStandard, t0),
			entry("b", model.ClassPremium, t0.Add(time.Minute)),
		)
		pub := &recorder{}
		m := assignment.New(store, assignment.WithPublisher(pub), assignment.WithClock(clock))

		Convey("When a counter claims next", func() {
			claim, err := m.ClaimNext(ctx, "line-1", "c1")

			Convey("Then the premium entry is called", func() {
				So(err, ShouldBeNil)
				So(claim.Attempts, ShouldEqual, 1)
				So(claim.Entry.ID, ShouldEqual, "b")
				So(claim.Entry.Status, ShouldEqual, model.StatusCalled)
				So(*claim.Entry.AssignedCounter, ShouldEqual, "c1")
				So(claim.Entry.ServiceStartedAt.Equal(clock()), ShouldBeTrue)
			})

			Convey("Then the subject and the line are notified", func() {
				So(pub.kinds(), ShouldResemble, []model.NotificationKind{model.KindCalled, model.KindUpdated})
				So(pub.sent[0].Topic, ShouldEqual, model.ParticipantTopic("subject-b"))
				So(pub.sent[0].Called.CounterID, ShouldEqual, "c1")
				So(pub.sent[1].Topic, ShouldEqual, model.LineTopic("line-1"))
			})

			Convey("And the same counter claims again", func() {
				_, err := m.ClaimNext(ctx, "line-1", "c1")

				Convey("Then the counter is busy and nothing moves", func() {
					So(errors.Is(err, model.ErrCounterBusy), ShouldBeTrue)
					a, _ := store.GetEntry(ctx, "a")
					So(a.Status, ShouldEqual, model.StatusWaiting)
				})
			})

			Convey("And the second counter takes the remaining entry", func() {
				second, err := m.ClaimNext(ctx, "line-1", "c2")
				So(err, ShouldBeNil)
				So(second.Entry.ID, ShouldEqual, "a")

				Convey("Then the line is exhausted for a freed counter", func() {
					_, err := m.CompleteService(ctx, "b")
					So(err, ShouldBeNil)
					_, err = m.ClaimNext(ctx, "line-1", "c1")
					So(errors.Is(err, model.ErrLineEmpty), ShouldBeTrue)
				})
			})
		})

		Convey("When the counter or line is unknown", func() {
			_, e1 := m.ClaimNext(ctx, "line-1", "ghost")
			_, e2 := m.ClaimNext(ctx, "ghost", "c1")

			Convey("Then not found is returned", func() {
				So(errors.Is(e1, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(e2, model.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When publishing fails", func() {
			pub.err = errors.New("bus down")
			claim, err := m.ClaimNext(ctx, "line-1", "c1")

			Convey("Then the claim still stands", func() {
				So(err, ShouldBeNil)
				got, _ := store.GetEntry(ctx, claim.Entry.ID)
				So(got.Status, ShouldEqual, model.StatusCalled)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := m.ClaimNext(cctx, "line-1", "c1")

			Convey("Then nothing is claimed", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				c, _ := store.GetCounter(ctx, "c1")
				So(c.Status, ShouldEqual, model.CounterIdle)
			})
		})
	})
}

func TestManager_ClaimConflicts(t *testing.T) {
	Convey("Given rivals that steal the chosen candidate", t, func() {
		ctx := context.Background()
		mem := repository.NewMemoryStore(ctx)
		defer mem.Close()
		seed(ctx, mem, 1,
			entry("a", model.ClassPremium, t0),
			entry("b", model.ClassElevated, t0),
			entry("c", model.ClassStandard, t0),
		)

		Convey("When one candidate is stolen", func() {
			store := &stealingStore{MemoryStore: mem, rival: "rival", steals: 1}
			m := assignment.New(store, assignment.WithClock(clock))
			claim, err := m.ClaimNext(ctx, "line-1", "c1")

			Convey("Then the next best entry is claimed on a retry", func() {
				So(err, ShouldBeNil)
				So(claim.Entry.ID, ShouldEqual, "b")
				So(claim.Attempts, ShouldEqual, 2)
				So(claim.Conflicts, ShouldEqual, 1)
			})
		})

		Convey("When every attempt is stolen", func() {
			store := &stealingStore{MemoryStore: mem, rival: "rival", steals: 10}
			m := assignment.New(store, assignment.WithClock(clock), assignment.WithMaxAttempts(2))
			claim, err := m.ClaimNext(ctx, "line-1", "c1")

			Convey("Then the outcome is line empty after the budget", func() {
				So(errors.Is(err, model.ErrLineEmpty), ShouldBeTrue)
				So(claim.Attempts, ShouldEqual, 2)
				So(claim.Conflicts, ShouldEqual, 2)
				c, _ := mem.GetCounter(ctx, "c1")
				So(c.Status, ShouldEqual, model.CounterIdle)
			})
		})
	})
}

func TestManager_AtMostOneClaim(t *testing.T) {
	Convey("Given two idle counters and one waiting entry", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store, 2, entry("only", model.ClassStandard, t0))
		m := assignment.New(store, assignment.WithClock(clock))

		Convey("When both counters claim at once", func() {
			results := make([]error, 2)
			var wg sync.WaitGroup
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, results[i] = m.ClaimNext(ctx, "line-1", fmt.Sprintf("c%d", i+1))
				}(i)
			}
			wg.Wait()

			Convey("Then exactly one succeeds and the other sees an empty line", func() {
				ok, empty := 0, 0
				for _, err := range results {
					switch {
					case err == nil:
						ok++
					case errors.Is(err, model.ErrLineEmpty):
						empty++
					}
				}
				So(ok, ShouldEqual, 1)
				So(empty, ShouldEqual, 1)
			})
		})
	})

	Convey("Given M idle counters and K >= M waiting entries", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		const counters, entries, callers = 6, 20, 24
		var es []model.QueueEntry
		for i := 0; i < entries; i++ {
			es = append(es, entry(fmt.Sprintf("e%02d", i), model.ServiceClass(i%3), t0.Add(time.Duration(i)*time.Second)))
		}
		seed(ctx, store, counters, es...)
		// a caller can lose at most one race per other counter
		m := assignment.New(store, assignment.WithClock(clock), assignment.WithMaxAttempts(counters+1))

		Convey("When N callers race over the counters", func() {
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = m.ClaimNext(ctx, "line-1", fmt.Sprintf("c%d", i%counters+1))
				}(i)
			}
			wg.Wait()

			Convey("Then exactly M entries are called, each on a distinct counter", func() {
				active, err := store.ListActive(ctx, "line-1")
				So(err, ShouldBeNil)
				byCounter := map[string]string{}
				called := 0
				for _, e := range active {
					if e.Status != model.StatusCalled {
						continue
					}
					called++
					_, dup := byCounter[*e.AssignedCounter]
					So(dup, ShouldBeFalse)
					byCounter[*e.AssignedCounter] = e.ID
				}
				So(called, ShouldEqual, counters)

				for id, eid := range byCounter {
					c, _ := store.GetCounter(ctx, id)
					So(c.Status, ShouldEqual, model.CounterBusy)
					So(*c.CurrentEntry, ShouldEqual, eid)
				}
			})
		})
	})
}

func TestManager_TerminalTransitions(t *testing.T) {
	Convey("Given a called entry", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		seed(ctx, store, 1, entry("a", model.ClassStandard, t0))
		pub := &recorder{}
		m := assignment.New(store, assignment.WithPublisher(pub), assignment.WithClock(clock))
		_, err := m.ClaimNext(ctx, "line-1", "c1")
		So(err, ShouldBeNil)

		Convey("When service completes twice", func() {
			first, err1 := m.CompleteService(ctx, "a")
			_, err2 := m.CompleteService(ctx, "a")

			Convey("Then only the first succeeds", func() {
				So(err1, ShouldBeNil)
				So(first.Status, ShouldEqual, model.StatusCompleted)
				So(errors.Is(err2, model.ErrInvalidTransition), ShouldBeTrue)
				c, _ := store.GetCounter(ctx, "c1")
				So(c.Status, ShouldEqual, model.CounterIdle)
				So(pub.kinds()[len(pub.kinds())-1], ShouldEqual, model.KindUpdated)
			})
		})

		Convey("When marked no-show twice", func() {
			_, err1 := m.MarkNoShow(ctx, "a")
			_, err2 := m.MarkNoShow(ctx, "a")

			Convey("Then only the first succeeds", func() {
				So(err1, ShouldBeNil)
				So(errors.Is(err2, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When completed after a no-show", func() {
			_, _ = m.MarkNoShow(ctx, "a")
			_, err := m.CompleteService(ctx, "a")

			Convey("Then it is an invalid transition", func() {
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When the entry is unknown", func() {
			_, err := m.CompleteService(ctx, "ghost")

			Convey("Then not found is returned", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
