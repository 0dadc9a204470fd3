package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newEntry(id, subject string) model.QueueEntry {
	return model.QueueEntry{
		ID:           id,
		SubjectID:    subject,
		LineID:       "line-1",
		ServiceClass: model.ClassStandard,
		JoinedAt:     t0,
		Status:       model.StatusWaiting,
	}
}

func setup(ctx context.Context) *repository.MemoryStore {
	s := repository.NewMemoryStore(ctx, repository.WithMetricsUpdateInterval(10*time.Millisecond))
	_, err := s.CreateLine(ctx, model.Line{ID: "line-1", Code: "LU100", CreatedAt: t0})
	So(err, ShouldBeNil)
	_, err = s.CreateCounter(ctx, model.Counter{ID: "c1", Name: "Counter 1"})
	So(err, ShouldBeNil)
	_, err = s.CreateCounter(ctx, model.Counter{ID: "c2", Name: "Counter 2"})
	So(err, ShouldBeNil)
	return s
}

func TestMemoryStore_Registry(t *testing.T) {
	Convey("Given a memory store", t, func() {
		ctx := context.Background()
		s := setup(ctx)
		defer s.Close()

		Convey("When registering duplicates", func() {
			_, errLine := s.CreateLine(ctx, model.Line{ID: "line-1"})
			_, errCounter := s.CreateCounter(ctx, model.Counter{ID: "c1"})

			Convey("Then they are rejected", func() {
				So(errors.Is(errLine, model.ErrDuplicate), ShouldBeTrue)
				So(errors.Is(errCounter, model.ErrDuplicate), ShouldBeTrue)
			})
		})

		Convey("When registering a counter with a preset status", func() {
			busy := "x"
			c, err := s.CreateCounter(ctx, model.Counter{ID: "c3", Status: model.CounterBusy, CurrentEntry: &busy})

			Convey("Then it starts idle", func() {
				So(err, ShouldBeNil)
				So(c.Status, ShouldEqual, model.CounterIdle)
				So(c.CurrentEntry, ShouldBeNil)
			})
		})

		Convey("When listing", func() {
			_, _ = s.CreateLine(ctx, model.Line{ID: "line-0", CreatedAt: t0.Add(time.Minute)})
			lines, _ := s.ListLines(ctx)
			counters, _ := s.ListCounters(ctx)

			Convey("Then results are ordered", func() {
				So(len(lines), ShouldEqual, 2)
				So(lines[0].ID, ShouldEqual, "line-1")
				So(counters[0].ID, ShouldEqual, "c1")
				So(counters[1].ID, ShouldEqual, "c2")
			})
		})

		Convey("When reading unknown ids", func() {
			_, e1 := s.GetLine(ctx, "nope")
			_, e2 := s.GetCounter(ctx, "nope")
			_, e3 := s.GetEntry(ctx, "nope")
			_, e4 := s.ListWaiting(ctx, "nope")

			Convey("Then not found is returned", func() {
				for _, err := range []error{e1, e2, e3, e4} {
					So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				}
			})
		})

		Convey("When the line deadline is mutated by the caller after reading", func() {
			d := t0.Add(time.Hour)
			_, _ = s.CreateLine(ctx, model.Line{ID: "line-d", DeadlineAt: &d})
			l, _ := s.GetLine(ctx, "line-d")
			*l.DeadlineAt = t0

			Convey("Then the stored value is unaffected", func() {
				again, _ := s.GetLine(ctx, "line-d")
				So(again.DeadlineAt.Equal(d), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_Entries(t *testing.T) {
	Convey("Given a memory store with one line", t, func() {
		ctx := context.Background()
		s := setup(ctx)
		defer s.Close()

		Convey("When a subject joins", func() {
			e, err := s.CreateEntry(ctx, newEntry("e1", "alice"))

			Convey("Then the entry waits", func() {
				So(err, ShouldBeNil)
				So(e.Status, ShouldEqual, model.StatusWaiting)
				waiting, _ := s.ListWaiting(ctx, "line-1")
				So(len(waiting), ShouldEqual, 1)
			})

			Convey("And joins again on the same line", func() {
				_, err := s.CreateEntry(ctx, newEntry("e2", "alice"))

				Convey("Then the existing id is reported", func() {
					var aa *model.AlreadyActiveError
					So(errors.As(err, &aa), ShouldBeTrue)
					So(aa.ExistingID, ShouldEqual, "e1")
					So(errors.Is(err, model.ErrAlreadyActive), ShouldBeTrue)
				})
			})

			Convey("And joins another line", func() {
				_, _ = s.CreateLine(ctx, model.Line{ID: "line-2"})
				other := newEntry("e2", "alice")
				other.LineID = "line-2"
				other.JoinedAt = t0.Add(time.Minute)
				_, err := s.CreateEntry(ctx, other)

				Convey("Then both are active, earliest first", func() {
					So(err, ShouldBeNil)
					active, _ := s.ActiveEntries(ctx, "alice")
					So(len(active), ShouldEqual, 2)
					So(active[0].ID, ShouldEqual, "e1")
				})
			})

			Convey("And the entry is served to completion", func() {
				_, err := s.Claim(ctx, "e1", "c1", t0.Add(time.Minute))
				So(err, ShouldBeNil)
				_, err = s.Release(ctx, "e1", model.StatusCompleted, t0.Add(4*time.Minute))
				So(err, ShouldBeNil)

				Convey("Then the subject may join again", func() {
					_, err := s.CreateEntry(ctx, newEntry("e2", "alice"))
					So(err, ShouldBeNil)
				})
			})
		})

		Convey("When the entry is malformed", func() {
			bad := []model.QueueEntry{
				{SubjectID: "a", LineID: "line-1", Status: model.StatusWaiting},
				{ID: "x", LineID: "line-1", Status: model.StatusWaiting},
				{ID: "x", SubjectID: "a", LineID: "line-1", ServiceClass: model.ServiceClass(9), Status: model.StatusWaiting},
				{ID: "x", SubjectID: "a", LineID: "line-1", Status: model.StatusCalled},
			}

			Convey("Then it is rejected", func() {
				for _, e := range bad {
					_, err := s.CreateEntry(ctx, e)
					So(errors.Is(err, repository.ErrInvalidEntry), ShouldBeTrue)
				}
			})
		})

		Convey("When the line is unknown", func() {
			e := newEntry("e1", "alice")
			e.LineID = "ghost"
			_, err := s.CreateEntry(ctx, e)

			Convey("Then not found is returned", func() {
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_ClaimRelease(t *testing.T) {
	Convey("Given a waiting entry", t, func() {
		ctx := context.Background()
		s := setup(ctx)
		defer s.Close()
		_, _ = s.CreateEntry(ctx, newEntry("e1", "alice"))
		_, _ = s.CreateEntry(ctx, newEntry("e2", "bob"))

		Convey("When it is claimed", func() {
			at := t0.Add(time.Minute)
			e, err := s.Claim(ctx, "e1", "c1", at)

			Convey("Then entry and counter move together", func() {
				So(err, ShouldBeNil)
				So(e.Status, ShouldEqual, model.StatusCalled)
				So(*e.AssignedCounter, ShouldEqual, "c1")
				So(e.ServiceStartedAt.Equal(at), ShouldBeTrue)

				c, _ := s.GetCounter(ctx, "c1")
				So(c.Status, ShouldEqual, model.CounterBusy)
				So(*c.CurrentEntry, ShouldEqual, "e1")

				waiting, _ := s.ListWaiting(ctx, "line-1")
				So(len(waiting), ShouldEqual, 1)
				active, _ := s.ListActive(ctx, "line-1")
				So(len(active), ShouldEqual, 2)
			})

			Convey("And claimed again by another counter", func() {
				_, err := s.Claim(ctx, "e1", "c2", at)

				Convey("Then the claim conflicts", func() {
					So(errors.Is(err, model.ErrClaimConflict), ShouldBeTrue)
					c, _ := s.GetCounter(ctx, "c2")
					So(c.Status, ShouldEqual, model.CounterIdle)
				})
			})

			Convey("And the busy counter claims another entry", func() {
				_, err := s.Claim(ctx, "e2", "c1", at)

				Convey("Then the counter is busy", func() {
					So(errors.Is(err, model.ErrCounterBusy), ShouldBeTrue)
					e2, _ := s.GetEntry(ctx, "e2")
					So(e2.Status, ShouldEqual, model.StatusWaiting)
				})
			})

			Convey("And it is completed", func() {
				done, err := s.Release(ctx, "e1", model.StatusCompleted, t0.Add(5*time.Minute))

				Convey("Then the counter is freed and history records it", func() {
					So(err, ShouldBeNil)
					So(done.Status, ShouldEqual, model.StatusCompleted)
					So(done.AssignedCounter, ShouldBeNil)
					d, ok := done.ServiceDuration()
					So(ok, ShouldBeTrue)
					So(d, ShouldEqual, 4*time.Minute)

					c, _ := s.GetCounter(ctx, "c1")
					So(c.Status, ShouldEqual, model.CounterIdle)
					So(c.CurrentEntry, ShouldBeNil)

					hist, _ := s.ListCompleted(ctx, "line-1", 10)
					So(len(hist), ShouldEqual, 1)
				})

				Convey("Then a second release is an invalid transition", func() {
					_, err := s.Release(ctx, "e1", model.StatusNoShow, t0.Add(6*time.Minute))
					So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
				})
			})

			Convey("And it is a no-show", func() {
				ns, err := s.Release(ctx, "e1", model.StatusNoShow, t0.Add(2*time.Minute))

				Convey("Then it stays out of the history", func() {
					So(err, ShouldBeNil)
					So(ns.ServiceCompletedAt, ShouldNotBeNil)
					hist, _ := s.ListCompleted(ctx, "line-1", 10)
					So(len(hist), ShouldEqual, 0)
				})
			})
		})

		Convey("When a waiting entry is released", func() {
			_, err := s.Release(ctx, "e1", model.StatusCompleted, t0)

			Convey("Then it is an invalid transition", func() {
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When releasing to a non-terminal status", func() {
			_, _ = s.Claim(ctx, "e1", "c1", t0)
			_, err := s.Release(ctx, "e1", model.StatusWaiting, t0)

			Convey("Then it is an invalid transition", func() {
				So(errors.Is(err, model.ErrInvalidTransition), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_ListCompleted(t *testing.T) {
	Convey("Given a line with a served history", t, func() {
		ctx := context.Background()
		s := setup(ctx)
		defer s.Close()

		// completed out of order on purpose
		ends := []time.Duration{5, 2, 9, 7}
		for i, end := range ends {
			id := fmt.Sprintf("e%d", i)
			_, _ = s.CreateEntry(ctx, newEntry(id, "s"+id))
			_, _ = s.Claim(ctx, id, "c1", t0)
			_, _ = s.Release(ctx, id, model.StatusCompleted, t0.Add(end*time.Minute))
		}

		Convey("When listing the most recent", func() {
			hist, err := s.ListCompleted(ctx, "line-1", 3)

			Convey("Then they come newest first and are capped", func() {
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 3)
				So(hist[0].ID, ShouldEqual, "e2")
				So(hist[1].ID, ShouldEqual, "e3")
				So(hist[2].ID, ShouldEqual, "e0")
			})
		})

		Convey("When two entries finish at the same instant", func() {
			for _, id := range []string{"e9", "e8"} {
				_, _ = s.CreateEntry(ctx, newEntry(id, "s"+id))
				_, _ = s.Claim(ctx, id, "c1", t0)
				_, _ = s.Release(ctx, id, model.StatusCompleted, t0.Add(20*time.Minute))
			}
			hist, err := s.ListCompleted(ctx, "line-1", 3)

			Convey("Then ties break by ascending id like the SQL store", func() {
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 3)
				So(hist[0].ID, ShouldEqual, "e8")
				So(hist[1].ID, ShouldEqual, "e9")
				So(hist[2].ID, ShouldEqual, "e2")
			})
		})

		Convey("When the limit exceeds the history", func() {
			hist, err := s.ListCompleted(ctx, "line-1", 50)

			Convey("Then the whole history is returned newest first", func() {
				So(err, ShouldBeNil)
				So(len(hist), ShouldEqual, 4)
				So(hist[3].ID, ShouldEqual, "e1")
			})
		})

		Convey("When the limit is not positive", func() {
			_, err := s.ListCompleted(ctx, "line-1", 0)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_ConcurrentClaims(t *testing.T) {
	Convey("Given many counters racing for few entries", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx)
		defer s.Close()
		_, _ = s.CreateLine(ctx, model.Line{ID: "line-1"})
		for i := 0; i < 8; i++ {
			_, _ = s.CreateCounter(ctx, model.Counter{ID: fmt.Sprintf("c%d", i)})
		}
		for i := 0; i < 3; i++ {
			_, _ = s.CreateEntry(ctx, newEntry(fmt.Sprintf("e%d", i), fmt.Sprintf("s%d", i)))
		}

		Convey("When every counter claims every entry at once", func() {
			var wins atomic.Int64
			var wg sync.WaitGroup
			for c := 0; c < 8; c++ {
				for e := 0; e < 3; e++ {
					wg.Add(1)
					go func(c, e int) {
						defer wg.Done()
						if _, err := s.Claim(ctx, fmt.Sprintf("e%d", e), fmt.Sprintf("c%d", c), t0); err == nil {
							wins.Add(1)
						}
					}(c, e)
				}
			}
			wg.Wait()

			Convey("Then each entry is claimed once by a distinct counter", func() {
				So(wins.Load(), ShouldEqual, 3)
				seen := map[string]bool{}
				for e := 0; e < 3; e++ {
					entry, _ := s.GetEntry(ctx, fmt.Sprintf("e%d", e))
					So(entry.Status, ShouldEqual, model.StatusCalled)
					So(seen[*entry.AssignedCounter], ShouldBeFalse)
					seen[*entry.AssignedCounter] = true
				}
			})
		})
	})
}
