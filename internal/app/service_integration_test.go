package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/okian/fishy/internal/app/trade"
	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/ratelimit"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceIntegration(t *testing.T) {
	Convey("Given a refreshed service and many users drawing at once", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		_, err := f.svc.RefreshAll(ctx)
		So(err, ShouldBeNil)

		const users = 30
		var wg sync.WaitGroup
		errs := make(chan error, users*2)
		for i := 0; i < users; i++ {
			user := fmt.Sprintf("user-%02d", i)
			for j := 0; j < 2; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.svc.Draw(ctx, user, user, "alpha")
					errs <- err
				}()
			}
		}
		wg.Wait()
		close(errs)

		allowed, limited := 0, 0
		for err := range errs {
			switch {
			case err == nil:
				allowed++
			case ratelimit.IsLimited(err):
				limited++
			default:
				t.Errorf("unexpected draw error: %v", err)
			}
		}

		Convey("Then every user got exactly one draw", func() {
			So(allowed, ShouldEqual, users)
			So(limited, ShouldEqual, users)

			board, err := f.svc.Leaderboard(ctx, "alpha", 100, 0)
			So(err, ShouldBeNil)
			So(len(board), ShouldEqual, users)
			for _, e := range board {
				So(e.DrawCount, ShouldEqual, 1)
				So(math.Abs(e.MeanPoints-e.TotalPoints), ShouldBeLessThan, 1e-9)
			}
		})
	})

	Convey("Given a pending trade raced by accept and reject", t, func() {
		ctx := context.Background()
		f := newFixture(t)
		_, err := f.svc.RefreshList(ctx, "alpha")
		So(err, ShouldBeNil)
		*f.pick = 0
		_, err = f.svc.Draw(ctx, "alice", "alice", "alpha")
		So(err, ShouldBeNil)
		*f.pick = 2
		_, err = f.svc.Draw(ctx, "bob", "bob", "alpha")
		So(err, ShouldBeNil)

		s, err := f.svc.RequestTrade(ctx, trade.Request{ListID: "alpha", Requester: "alice", Target: "bob", Give: "a", Want: "c"})
		So(err, ShouldBeNil)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i, accept := range []bool{true, false} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, results[i] = f.svc.RespondTrade(ctx, s.ID, "bob", accept)
			}()
		}
		wg.Wait()

		Convey("Then exactly one resolver wins and the ledger matches it", func() {
			wins, losses := 0, 0
			for _, err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, trade.ErrSessionTerminal):
					losses++
				}
			}
			So(wins, ShouldEqual, 1)
			So(losses, ShouldEqual, 1)

			got, err := f.svc.Trade(ctx, s.ID)
			So(err, ShouldBeNil)
			alice, err := f.svc.Profile(ctx, "alice", "alpha")
			So(err, ShouldBeNil)
			bob, err := f.svc.Profile(ctx, "bob", "alpha")
			So(err, ShouldBeNil)

			switch got.State {
			case model.TradeAccepted:
				So(alice.Entry.Items["c"], ShouldEqual, 1)
				So(bob.Entry.Items["a"], ShouldEqual, 1)
			case model.TradeRejected:
				So(alice.Entry.Items["a"], ShouldEqual, 1)
				So(bob.Entry.Items["c"], ShouldEqual, 1)
			default:
				So(string(got.State), ShouldBeIn, []string{string(model.TradeAccepted), string(model.TradeRejected)})
			}
			So(alice.Entry.ItemTotal()+bob.Entry.ItemTotal(), ShouldEqual, 2)
		})
	})
}
