package model_test

import (
	"encoding/json"
	"testing"
	"time"

	model "github.com/okian/lineup/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestServiceClass(t *testing.T) {
	convey.Convey("Given the service class enum", t, func() {
		convey.Convey("When parsing wire names and airline aliases", func() {
			cases := map[string]model.ServiceClass{
				"STANDARD": model.ClassStandard,
				"economy":  model.ClassStandard,
				"Elevated": model.ClassElevated,
				"BUSINESS": model.ClassElevated,
				"premium":  model.ClassPremium,
				" FIRST ":  model.ClassPremium,
			}
			convey.Convey("Then each maps to its class", func() {
				for in, want := range cases {
					got, err := model.ParseServiceClass(in)
					convey.So(err, convey.ShouldBeNil)
					convey.So(got, convey.ShouldEqual, want)
				}
			})
		})

		convey.Convey("When parsing an unknown name", func() {
			_, err := model.ParseServiceClass("steerage")

			convey.Convey("Then it should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When round-tripping through JSON", func() {
			raw, err := json.Marshal(struct {
				C model.ServiceClass `json:"c"`
			}{C: model.ClassPremium})
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(raw), convey.ShouldEqual, `{"c":"PREMIUM"}`)

			var out struct {
				C model.ServiceClass `json:"c"`
			}
			convey.So(json.Unmarshal([]byte(`{"c":"business"}`), &out), convey.ShouldBeNil)
			convey.So(out.C, convey.ShouldEqual, model.ClassElevated)
		})

		convey.Convey("When marshalling an out-of-range class", func() {
			_, err := json.Marshal(model.ServiceClass(9))

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestEntryStatus(t *testing.T) {
	convey.Convey("Given entry statuses", t, func() {
		convey.So(model.StatusWaiting.Active(), convey.ShouldBeTrue)
		convey.So(model.StatusCalled.Active(), convey.ShouldBeTrue)
		convey.So(model.StatusCompleted.Active(), convey.ShouldBeFalse)
		convey.So(model.StatusNoShow.Terminal(), convey.ShouldBeTrue)
		convey.So(model.StatusCalled.Terminal(), convey.ShouldBeFalse)
	})
}

func TestQueueEntry(t *testing.T) {
	convey.Convey("Given a queue entry", t, func() {
		entry := model.QueueEntry{ID: "e1", SubjectID: "s1", LineID: "l1"}

		convey.Convey("When it is a standard entry without assistance", func() {
			convey.So(entry.Priority(), convey.ShouldBeFalse)
		})

		convey.Convey("When it needs assistance", func() {
			entry.NeedsAssistance = true
			convey.So(entry.Priority(), convey.ShouldBeTrue)
		})

		convey.Convey("When it has an elevated class", func() {
			entry.ServiceClass = model.ClassElevated
			convey.So(entry.Priority(), convey.ShouldBeTrue)
		})

		convey.Convey("When service timestamps are present", func() {
			start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
			end := start.Add(4 * time.Minute)
			entry.ServiceStartedAt = &start
			entry.ServiceCompletedAt = &end

			d, ok := entry.ServiceDuration()
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(d, convey.ShouldEqual, 4*time.Minute)
		})

		convey.Convey("When a timestamp is missing", func() {
			_, ok := entry.ServiceDuration()
			convey.So(ok, convey.ShouldBeFalse)
		})
	})
}

func TestNotification(t *testing.T) {
	convey.Convey("Given an entry that was called", t, func() {
		entry := &model.QueueEntry{ID: "e1", SubjectID: "s1", LineID: "l1"}
		n := model.NewCalled(entry, "counter-2")

		convey.Convey("Then the call targets the participant topic", func() {
			convey.So(n.Kind, convey.ShouldEqual, model.KindCalled)
			convey.So(n.Topic, convey.ShouldEqual, "passenger:s1")
			convey.So(n.Called.CounterID, convey.ShouldEqual, "counter-2")
			convey.So(n.Updated, convey.ShouldBeNil)
		})

		convey.Convey("Then the update targets the line topic", func() {
			u := model.NewUpdated("l1")
			convey.So(u.Kind, convey.ShouldEqual, model.KindUpdated)
			convey.So(u.Topic, convey.ShouldEqual, "line:l1:update")
			convey.So(u.Called, convey.ShouldBeNil)
		})
	})
}
