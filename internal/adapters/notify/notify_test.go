package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/okian/lineup/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var called = model.NewCalled(&model.QueueEntry{ID: "e1", SubjectID: "p1", LineID: "l1"}, "c1")

type recorder struct {
	got []model.Notification
	err error
}

func (r *recorder) Publish(_ context.Context, n model.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestHub(t *testing.T) {
	Convey("Given a hub", t, func() {
		ctx := context.Background()
		h := NewHub(WithBufferSize(1))
		defer h.Close()

		Convey("When a topic has a subscriber", func() {
			sub, err := h.Subscribe(model.ParticipantTopic("p1"))
			So(err, ShouldBeNil)
			other, err := h.Subscribe(model.LineTopic("l1"))
			So(err, ShouldBeNil)
			So(h.Subscribers(), ShouldEqual, 2)

			So(h.Publish(ctx, called), ShouldBeNil)

			Convey("Then only that topic receives it", func() {
				n := <-sub.C()
				So(n.Kind, ShouldEqual, model.KindCalled)
				So(n.Called.CounterID, ShouldEqual, "c1")
				So(len(other.C()), ShouldEqual, 0)
			})

			Convey("Then a full buffer drops instead of blocking", func() {
				So(h.Publish(ctx, called), ShouldBeNil)
				So(len(sub.C()), ShouldEqual, 1)
			})

			Convey("Then cancel closes the channel once", func() {
				sub.Cancel()
				sub.Cancel()
				<-sub.C()
				_, open := <-sub.C()
				So(open, ShouldBeFalse)
				So(h.Subscribers(), ShouldEqual, 1)
			})
		})

		Convey("When the notification is malformed", func() {
			So(errors.Is(h.Publish(ctx, model.Notification{Kind: model.KindCalled, Topic: "x"}), ErrMalformed), ShouldBeTrue)
			So(errors.Is(h.Publish(ctx, model.Notification{Kind: model.KindUpdated}), ErrNoTopic), ShouldBeTrue)
			_, err := h.Subscribe("")
			So(errors.Is(err, ErrNoTopic), ShouldBeTrue)
		})

		Convey("When the hub is closed", func() {
			sub, _ := h.Subscribe("line:l1:update")
			So(h.Close(), ShouldBeNil)

			Convey("Then subscribers are released and publishes fail", func() {
				_, open := <-sub.C()
				So(open, ShouldBeFalse)
				So(errors.Is(h.Publish(ctx, model.NewUpdated("l1")), ErrClosed), ShouldBeTrue)
				_, err := h.Subscribe("line:l1:update")
				So(errors.Is(err, ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestRedisPublisher(t *testing.T) {
	Convey("Given a redis publisher on a mock client", t, func() {
		ctx := context.Background()
		db, mock := redismock.NewClientMock()
		defer mock.ClearExpect()
		p := NewRedisPublisher(db, WithChannelPrefix("test:"))

		payload, err := json.Marshal(called)
		So(err, ShouldBeNil)

		Convey("When the publish succeeds", func() {
			mock.ExpectPublish("test:passenger:p1", payload).SetVal(1)

			Convey("Then the JSON lands on the prefixed channel", func() {
				So(p.Publish(ctx, called), ShouldBeNil)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When redis fails", func() {
			mock.ExpectPublish("test:passenger:p1", payload).SetErr(errors.New("connection refused"))

			Convey("Then the error is returned", func() {
				err := p.Publish(ctx, called)
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "connection refused")
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When the notification is malformed", func() {
			Convey("Then redis is never called", func() {
				So(errors.Is(p.Publish(ctx, model.Notification{Kind: "other", Topic: "x"}), ErrMalformed), ShouldBeTrue)
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When pinging", func() {
			mock.ExpectPing().SetVal("PONG")
			So(p.Ping(ctx), ShouldBeNil)
			So(p.Channel("line:l1:update"), ShouldEqual, "test:line:l1:update")
		})
	})
}

func TestMulti(t *testing.T) {
	Convey("Given a fan-out over two publishers", t, func() {
		ctx := context.Background()
		a, b := &recorder{}, &recorder{err: errors.New("b down")}
		m := Multi{a, nil, b}

		Convey("Then every publisher is tried and errors are joined", func() {
			err := m.Publish(ctx, called)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "b down")
			So(len(a.got), ShouldEqual, 1)
			So(len(b.got), ShouldEqual, 1)
		})

		Convey("Then an empty fan-out succeeds", func() {
			So(Multi{}.Publish(ctx, called), ShouldBeNil)
		})
	})
}
