package jsonrpc

// Scheduler runs handler-dispatch work. The default schedules each call on
// its own goroutine; an embedder can supply a bounded worker pool instead
// via WithScheduler (spec.md §6's input_scheduler option).
type Scheduler interface {
	Go(fn func())
}

// goroutineScheduler is the default Scheduler: one goroutine per call.
type goroutineScheduler struct{}

func (goroutineScheduler) Go(fn func()) { go fn() }
