package timex

import "time"

// Mono is a monotonic millisecond clock starting at zero when created.
type Mono struct{ start time.Time }

func NewMono() Mono { return Mono{start: time.Now()} }

// NowMs returns milliseconds since NewMono. It never goes backwards.
func (m Mono) NowMs() int64 { return time.Since(m.start).Milliseconds() }

// Every reports whether at least period has elapsed between last and now,
// both in milliseconds.
func Every(nowMs, lastMs int64, period time.Duration) bool {
	return nowMs-lastMs >= period.Milliseconds()
}
