package storage

import (
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// nextTimestamp returns a strictly increasing Unix-millisecond timestamp.
// Bursts inside one millisecond are bumped forward so two inserts never
// share a creation time, which keeps the fallback ordering total.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
