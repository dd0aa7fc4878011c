package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails while more than limit goroutines are running.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck fails while any recent stop-the-world GC pause is longer
// than limit.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		if len(stats.Pause) == 0 {
			return nil
		}
		if longest := slices.Max(stats.Pause); longest > limit {
			return errors.Errorf("GC pause %s exceeds threshold %s", longest, limit)
		}
		return nil
	}
}
