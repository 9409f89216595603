package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/jury/pkg/errs"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given errors built by the errs helpers", t, func() {
		Convey("When a kind is attached with New", func() {
			err := errs.New("jury.submit", errs.ErrNotFound)

			Convey("Then errors.Is matches the kind", func() {
				So(errs.IsNotFound(err), ShouldBeTrue)
				So(errs.IsValidation(err), ShouldBeFalse)
				So(err.Error(), ShouldEqual, "jury.submit: not found")
			})
		})

		Convey("When a cause is wrapped with a kind", func() {
			cause := errors.New("entry e-1")
			err := errs.WrapKind("jury.submit", errs.ErrNotFound, cause)

			Convey("Then both kind and cause are reachable", func() {
				So(errors.Is(err, errs.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, cause), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "jury.submit: not found: entry e-1")
			})
		})

		Convey("When a kinded error is wrapped again", func() {
			inner := errs.Invalid("submission.plan", "value 11 exceeds max 10", "no criteria scored")
			err := fmt.Errorf("outer: %w", errs.Wrap("jury.submit", inner))

			Convey("Then the kind and details survive", func() {
				So(errs.IsValidation(err), ShouldBeTrue)
				So(errs.Details(err), ShouldResemble, []string{"value 11 exceeds max 10", "no criteria scored"})
			})
		})

		Convey("When wrapping nil", func() {
			So(errs.Wrap("op", nil), ShouldBeNil)
		})
	})
}
