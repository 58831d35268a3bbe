package core

// Future is the asynchronous result produced by the Resolves and Rejects
// behaviors. It settles from its own goroutine rather than synchronously,
// so callers observe the same ordering they would with any other
// concurrently produced value: each call's future carries the value
// assigned to that call's slot, independent of when other futures settle.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

// Await blocks until the future settles, then returns its value or error.
func (f *Future) Await() (any, error) {
	<-f.done

	return f.value, f.err
}

// Settled reports whether the future has settled without blocking.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func newResolvedFuture(value any) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		f.value = value
		close(f.done)
	}()

	return f
}

func newRejectedFuture(err error) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		f.err = err
		close(f.done)
	}()

	return f
}
