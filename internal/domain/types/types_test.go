package types_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/okian/fishy/internal/domain/model"
	"github.com/okian/fishy/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewTradeEvent(t *testing.T) {
	Convey("Given a trade session", t, func() {
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		s := model.TradeSession{
			ID: "t1", ListID: "aredl", Requester: "alice", Target: "bob",
			Give: "a", Want: "b", State: model.TradePending,
			CreatedAt: at, Deadline: at.Add(2 * time.Minute),
		}

		Convey("A pending event goes to the target", func() {
			e := types.NewTradeEvent(model.TradeEvent{Session: s, At: at})
			So(e.Type, ShouldEqual, "trade.pending")
			So(e.Recipients, ShouldResemble, []string{"bob"})
			So(e.Trade.Deadline.Equal(at.Add(2*time.Minute)), ShouldBeTrue)
		})

		Convey("A rejected event goes back to the requester with its reason", func() {
			s.State, s.Reason = model.TradeRejected, "declined"
			e := types.NewTradeEvent(model.TradeEvent{Session: s, At: at})
			So(e.Type, ShouldEqual, "trade.rejected")
			So(e.Recipients, ShouldResemble, []string{"alice"})
			So(e.Trade.Reason, ShouldEqual, "declined")
		})

		Convey("The JSON shape uses snake_case keys and omits an empty reason", func() {
			data, err := json.Marshal(types.NewTrade(s))
			So(err, ShouldBeNil)
			var m map[string]any
			So(json.Unmarshal(data, &m), ShouldBeNil)
			So(m["list_id"], ShouldEqual, "aredl")
			So(m["created_at"], ShouldNotBeNil)
			_, hasReason := m["reason"]
			So(hasReason, ShouldBeFalse)
		})
	})
}
