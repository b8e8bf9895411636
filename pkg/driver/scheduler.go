package driver

import (
	"time"

	"avaneesh/lapdm-go/pkg/datalink"
	"avaneesh/lapdm-go/pkg/lapdm"
)

// timerKey identifies one T200 in the driver's queue
type timerKey struct {
	ch *lapdm.Channel
	dl *datalink.Datalink
}

// scheduler runs the T200 timers of one channel on the driver's queue.
// It is called with the channel lock held, so it only records the deadline
// and wakes the event loop.
type scheduler struct {
	d  *Driver
	ch *lapdm.Channel
}

func (s *scheduler) StartTimer(dl *datalink.Datalink, gen uint32, d time.Duration) {
	s.d.timers.Schedule(timerKey{ch: s.ch, dl: dl}, gen, time.Now().Add(d))
	s.d.wake()
}

func (s *scheduler) StopTimer(dl *datalink.Datalink) {
	s.d.timers.Cancel(timerKey{ch: s.ch, dl: dl})
}

// fireTimers delivers every expired T200 and returns the next deadline
func (d *Driver) fireTimers(now time.Time) (time.Time, bool) {
	for _, item := range d.timers.Expired(now) {
		key := item.Key.(timerKey)
		d.stats.t200Fired()
		key.ch.T200Expired(key.dl, item.Gen)
	}
	return d.timers.Next()
}

var _ datalink.Scheduler = (*scheduler)(nil)
