// Package globaltime is the process-wide clock. Pipeline code reads it
// instead of time.Now so TTL and freshness tests can pin the moment a
// run happens.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu  sync.RWMutex
	now = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return now()
}

// UTC is what the pipeline stamps records and artifacts with.
func UTC() time.Time {
	return Now().UTC()
}

// SetMockTime freezes the clock at t until ResetTime.
func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	now = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	now = time.Now
}
