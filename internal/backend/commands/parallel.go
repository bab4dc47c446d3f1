package commands

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// parallelForStop runs fn(i) over i in [0, n) using up to GOMAXPROCS workers.
// Work is distributed by striding. All workers stop as soon as one invocation
// returns true; the result reports whether that happened.
func parallelForStop(n int, fn func(i int) bool) bool {
	if n <= 0 {
		return false
	}
	workers := min(runtime.GOMAXPROCS(0), n)

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func() {
			defer wg.Done()
			for i := w; i < n && !stop.Load(); i += workers {
				if fn(i) {
					stop.Store(true)
					return
				}
			}
		}()
	}

	wg.Wait()
	return stop.Load()
}
