package observer

import "sync/atomic"

// ChannelSubscriber forwards messages to a buffered channel without
// blocking the emitter. Messages that do not fit are dropped and counted.
type ChannelSubscriber struct {
	ch      chan Message
	dropped atomic.Uint64
}

// NewChannelSubscriber returns a subscriber with the given buffer size.
func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	return &ChannelSubscriber{ch: make(chan Message, buffer)}
}

func (c *ChannelSubscriber) Notify(m Message) {
	select {
	case c.ch <- m:
	default:
		c.dropped.Add(1)
	}
}

// C returns the receive side. It is never closed; stop reading once the
// subscription is closed.
func (c *ChannelSubscriber) C() <-chan Message {
	return c.ch
}

// Dropped returns how many messages were discarded because the buffer was
// full.
func (c *ChannelSubscriber) Dropped() uint64 {
	return c.dropped.Load()
}
