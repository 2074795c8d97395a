package clock

import "time"

// Clock provides the monotonic millisecond counter used for deadlines and
// wire timestamps. The counter wraps at 2^32 ms (~49.7 days); callers compare
// values with wrap-aware arithmetic (see MillisBefore).
type Clock interface {
	NowMillis() uint32
}

// System is the production clock, anchored at process start so values start
// near zero like an OS tick counter.
type System struct {
	start time.Time
}

// NewSystem returns a Clock backed by the OS monotonic clock.
func NewSystem() *System { return &System{start: time.Now()} }

func (s *System) NowMillis() uint32 {
	return uint32(time.Since(s.start) / time.Millisecond)
}

// MillisBefore reports whether a <= b in wrap-aware (serial number)
// millisecond arithmetic. The horizon precondition: no two compared values
// are ever more than 2^31 ms apart.
func MillisBefore(a, b uint32) bool { return int32(a-b) <= 0 }

// MillisAfter reports whether a > b, wrap-aware.
func MillisAfter(a, b uint32) bool { return int32(a-b) > 0 }

// Fake is a hand-advanced clock for tests.
type Fake struct {
	Now uint32
}

func (f *Fake) NowMillis() uint32 { return f.Now }
func (f *Fake) Advance(ms uint32) { f.Now += ms }
func (f *Fake) Set(ms uint32)     { f.Now = ms }
