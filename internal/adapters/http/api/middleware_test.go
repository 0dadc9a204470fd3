package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a wrapped handler", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}, "test")

		Convey("Then the status code passes through", func() {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, "/", nil))
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("Then error types follow the status", func() {
			So(getErrorType(500), ShouldEqual, "server_error")
			So(getErrorType(409), ShouldEqual, "conflict")
			So(getErrorType(404), ShouldEqual, "not_found")
			So(getErrorType(400), ShouldEqual, "client_error")
			So(getErrorType(200), ShouldEqual, "unknown")
		})

		Convey("Then the wrapper unwraps for response controllers", func() {
			rec := httptest.NewRecorder()
			rw := &responseWriter{ResponseWriter: rec}
			So(rw.Unwrap(), ShouldEqual, rec)
			So(http.NewResponseController(rw).Flush(), ShouldBeNil)
		})
	})
}
