package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/lineup/internal/domain/estimate"
	"github.com/okian/lineup/internal/domain/model"
	types "github.com/okian/lineup/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestJoinRequest_Validate(t *testing.T) {
	Convey("Given join requests", t, func() {
		ok := types.JoinRequest{SubjectID: "p1", LineID: "l1", ServiceClass: model.ClassPremium}

		Convey("Then a complete request is valid", func() {
			So(ok.Validate(), ShouldBeNil)
		})

		Convey("Then missing fields are rejected", func() {
			r := ok
			r.SubjectID = " "
			So(r.Validate(), ShouldEqual, types.ErrMissingSubject)

			r = ok
			r.LineID = ""
			So(r.Validate(), ShouldEqual, types.ErrMissingLine)

			r = ok
			r.ServiceClass = 7
			So(r.Validate(), ShouldEqual, types.ErrInvalidClass)
		})

		Convey("Then the class decodes from its wire name", func() {
			var r types.JoinRequest
			err := json.Unmarshal([]byte(`{"subject_id":"p1","line_id":"l1","service_class":"business"}`), &r)
			So(err, ShouldBeNil)
			So(r.ServiceClass, ShouldEqual, model.ClassElevated)
		})
	})
}

func TestLineMetrics_JSON(t *testing.T) {
	Convey("Given line metrics", t, func() {
		m := types.LineMetrics{
			LineID:    "l1",
			LineStats: estimate.LineStats{WaitingCount: 4, PriorityCount: 1, TotalEtaMinutes: 12},
		}

		Convey("Then the stats are flattened next to the line id", func() {
			b, err := json.Marshal(m)
			So(err, ShouldBeNil)
			var got map[string]any
			So(json.Unmarshal(b, &got), ShouldBeNil)
			So(got["line_id"], ShouldEqual, "l1")
			So(got["waiting_count"], ShouldEqual, 4.0)
			So(got["total_eta_minutes"], ShouldEqual, 12.0)
		})
	})
}
