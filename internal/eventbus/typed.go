package eventbus

// SubscribeTyped filters the bus down to events of a single type. The
// returned stop function unsubscribes the underlying channel and drains
// the forwarding goroutine.
func SubscribeTyped[T any](bus EventBus) (<-chan T, func()) {
	raw := bus.Subscribe()
	out := make(chan T, 16)
	go func() {
		defer close(out)
		for e := range raw {
			if v, ok := e.(T); ok {
				select {
				case out <- v:
				default:
				}
			}
		}
	}()
	stop := func() { bus.Unsubscribe(raw) }
	return out, stop
}
