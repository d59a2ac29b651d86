package swagger_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/safesite/proximity/internal/adapters/http/swagger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRegister(t *testing.T) {
	Convey("Given a mux with the docs routes registered", t, func() {
		mux := http.NewServeMux()
		swagger.Register(mux)

		Convey("The docs page renders", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api-docs", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(rec.Body.String(), ShouldContainSubstring, "Redoc.init")
		})

		Convey("The OpenAPI spec is served", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "Proximity Service API")
			So(rec.Body.String(), ShouldContainSubstring, "/reports")
		})
	})

	Convey("Registering on a nil mux panics", t, func() {
		So(func() { swagger.Register(nil) }, ShouldPanic)
	})
}
