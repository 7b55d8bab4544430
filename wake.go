package ddns

// Wake is a single-slot coalescing signal.
// Any number of Notify calls made before the receiver drains C collapse into one pending wake.
type Wake struct {
	c chan struct{}
}

func NewWake() *Wake {
	return &Wake{c: make(chan struct{}, 1)}
}

// Notify marks a wake as pending. It never blocks.
func (w *Wake) Notify() {
	select {
	case w.c <- struct{}{}:
	default:
	}
}

// C is readable while a wake is pending. Receiving from it clears the pending wake.
func (w *Wake) C() <-chan struct{} {
	return w.c
}
