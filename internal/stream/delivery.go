package stream

// Delivery is what the emitter hands to its listener after each tick that
// consumed text, and once more when a finished session is flushed. A tick
// that finds all source text already consumed makes no delivery.
//
// Committed is new output to append permanently. Speculative renders the
// text not yet safe to commit; it replaces whatever preview was shown
// before. Cumulative is every committed increment so far and Preview
// repeats Speculative.
type Delivery struct {
	Committed   string
	Speculative string
	Cumulative  string
	Preview     string
	// Final is set on the delivery made by a finish flush.
	Final bool
}

// Listener receives deliveries in order. Deliver is never called
// concurrently for the same stream.
type Listener interface {
	Deliver(d Delivery)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(d Delivery)

func (f ListenerFunc) Deliver(d Delivery) {
	f(d)
}

// ChannelListener forwards deliveries to ch. Sends block, so the reader
// paces the emitter.
func ChannelListener(ch chan<- Delivery) Listener {
	return ListenerFunc(func(d Delivery) {
		ch <- d
	})
}

type discard struct{}

func (discard) Deliver(Delivery) {}
