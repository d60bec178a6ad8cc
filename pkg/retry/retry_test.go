package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tastemachine/poa-engine/pkg/retry"
)

func TestDo(t *testing.T) {
	Convey("Given a policy with three fast attempts", t, func() {
		p := retry.NewPolicy(
			retry.WithMaxAttempts(3),
			retry.WithInterval(time.Millisecond, 2*time.Millisecond),
		)
		ctx := context.Background()

		Convey("When the operation succeeds immediately", func() {
			calls := 0
			err := p.Do(ctx, func(ctx context.Context) error {
				calls++
				return nil
			})

			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 1)
		})

		Convey("When the operation succeeds on the second try", func() {
			calls := 0
			err := p.Do(ctx, func(ctx context.Context) error {
				calls++
				if calls < 2 {
					return errors.New("transient")
				}
				return nil
			})

			So(err, ShouldBeNil)
			So(calls, ShouldEqual, 2)
		})

		Convey("When every attempt fails", func() {
			transient := errors.New("transient")
			calls := 0
			err := p.Do(ctx, func(ctx context.Context) error {
				calls++
				return transient
			})

			Convey("Then the attempt bound holds and the cause is wrapped", func() {
				So(calls, ShouldEqual, 3)
				So(errors.Is(err, transient), ShouldBeTrue)
			})
		})

		Convey("When the error is permanent", func() {
			invalid := errors.New("invalid input")
			calls := 0
			err := p.Do(ctx, func(ctx context.Context) error {
				calls++
				return retry.Permanent(invalid)
			})

			Convey("Then there is no second attempt", func() {
				So(calls, ShouldEqual, 1)
				So(errors.Is(err, invalid), ShouldBeTrue)
			})
		})

		Convey("When the context is cancelled mid-retry", func() {
			cancelCtx, cancel := context.WithCancel(ctx)
			calls := 0
			err := p.Do(cancelCtx, func(ctx context.Context) error {
				calls++
				cancel()
				return errors.New("transient")
			})

			Convey("Then cancellation wins over further attempts", func() {
				So(calls, ShouldEqual, 1)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}
