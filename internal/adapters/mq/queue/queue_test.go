package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/fishy/internal/adapters/mq/queue"
	"github.com/okian/fishy/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func event(id string) queue.Event {
	return model.TradeEvent{
		Session: model.TradeSession{ID: id, Requester: "alice", Target: "bob", State: model.TradePending},
		At:      time.Now(),
	}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))

		Convey("It starts empty and open", func() {
			So(q.Len(), ShouldEqual, 0)
			So(q.IsClosed(), ShouldBeFalse)
		})

		Convey("Events come out in order", func() {
			So(q.Enqueue(ctx, event("t1")), ShouldBeTrue)
			So(q.Enqueue(ctx, event("t2")), ShouldBeTrue)
			So(q.Len(), ShouldEqual, 2)

			So((<-q.Dequeue()).Session.ID, ShouldEqual, "t1")
			So((<-q.Dequeue()).Session.ID, ShouldEqual, "t2")
			So(q.Len(), ShouldEqual, 0)
		})

		Convey("A full queue drops instead of blocking", func() {
			So(q.Enqueue(ctx, event("t1")), ShouldBeTrue)
			So(q.Enqueue(ctx, event("t2")), ShouldBeTrue)
			So(q.Enqueue(ctx, event("t3")), ShouldBeFalse)
			So(q.Len(), ShouldEqual, 2)
		})

		Convey("A cancelled context drops the event", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(q.Enqueue(cctx, event("t1")), ShouldBeFalse)
		})

		Convey("Closing keeps buffered events readable", func() {
			So(q.Enqueue(ctx, event("t1")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.IsClosed(), ShouldBeTrue)
			So(q.Enqueue(ctx, event("t2")), ShouldBeFalse)

			e, ok := <-q.Dequeue()
			So(ok, ShouldBeTrue)
			So(e.Session.ID, ShouldEqual, "t1")
			_, ok = <-q.Dequeue()
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given concurrent producers and consumers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(50))
		const producers, perProducer = 8, 100

		var consumed sync.WaitGroup
		var mu sync.Mutex
		seen := make(map[string]bool)
		for i := 0; i < 4; i++ {
			consumed.Add(1)
			go func() {
				defer consumed.Done()
				for e := range q.Dequeue() {
					mu.Lock()
					seen[e.Session.ID] = true
					mu.Unlock()
				}
			}()
		}

		var produced sync.WaitGroup
		for p := 0; p < producers; p++ {
			produced.Add(1)
			go func(p int) {
				defer produced.Done()
				for j := 0; j < perProducer; j++ {
					for !q.Enqueue(ctx, event(fmt.Sprintf("t%d-%d", p, j))) {
						time.Sleep(time.Millisecond)
					}
				}
			}(p)
		}
		produced.Wait()
		So(q.Close(), ShouldBeNil)
		consumed.Wait()

		So(len(seen), ShouldEqual, producers*perProducer)
	})
}
