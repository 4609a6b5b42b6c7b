package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"go.polydawn.net/pkgrun/scheduler/dispatch"
)

func TestSchedulers(t *testing.T) {
	ctx := context.Background()
	Convey("Linear schedulers go in order and honor stop requests", t, func() {
		var seen []int
		schedulerdispatch.Get(false, 0).Schedule(ctx, 5, func(ctx context.Context, i int) bool {
			seen = append(seen, i)
			return i < 2
		})
		So(seen, ShouldResemble, []int{0, 1, 2})
	})

	Convey("Group schedulers run everything, bounded", t, func() {
		var running, peak int32
		var mu sync.Mutex
		done := map[int]bool{}
		schedulerdispatch.Get(true, 2).Schedule(ctx, 6, func(ctx context.Context, i int) bool {
			now := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if now <= p || atomic.CompareAndSwapInt32(&peak, p, now) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			mu.Lock()
			done[i] = true
			mu.Unlock()
			return false
		})
		So(done, ShouldHaveLength, 6)
		So(peak, ShouldBeLessThanOrEqualTo, 2)
		So(peak, ShouldBeGreaterThan, 0)
	})
}
