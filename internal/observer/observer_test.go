package observer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datapipe/internal/data"
)

func TestBus_DeliversInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(SubscriberFunc(func(m Message) { got = append(got, m.Text) }))

	for _, s := range []string{"a", "b", "c"} {
		b.Emit(Message{Type: Info, Text: s})
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	b := NewBus()
	n := 0
	sub := b.Subscribe(SubscriberFunc(func(Message) { n++ }))
	other := b.Subscribe(SubscriberFunc(func(Message) {}))

	b.Emit(Message{Type: Info})
	sub.Close()
	sub.Close()
	b.Emit(Message{Type: Info})

	assert.Equal(t, 1, n)
	assert.Equal(t, 1, b.Len())
	other.Close()
	assert.Equal(t, 0, b.Len())
}

func TestSubscription_CloseFromNotify(t *testing.T) {
	b := NewBus()
	var sub *Subscription
	calls := 0
	sub = b.Subscribe(SubscriberFunc(func(Message) {
		calls++
		sub.Close()
	}))
	later := 0
	b.Subscribe(SubscriberFunc(func(Message) { later++ }))

	b.Emit(Message{Type: Info})
	b.Emit(Message{Type: Info})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, later, "closing one subscriber must not skip the next")
}

func TestBus_ConcurrentSubscribeAndEmit(t *testing.T) {
	b := NewBus()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s := b.Subscribe(SubscriberFunc(func(Message) {}))
				s.Close()
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Emit(Message{Type: Progress})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Len())
}

func TestForward(t *testing.T) {
	node := NewBus()
	pipe := NewBus()
	var got []Message
	pipe.Subscribe(SubscriberFunc(func(m Message) { got = append(got, m) }))

	fwd := Forward(node, pipe)
	node.Emit(Message{Type: Warning, Node: 2, Code: 7, Text: "w"})
	fwd.Close()
	node.Emit(Message{Type: Warning, Node: 2})

	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Node)
	assert.Equal(t, "[2] warning 7: w", got[0].String())
}

func TestChannelSubscriber_DropsOnBackpressure(t *testing.T) {
	b := NewBus()
	ch := NewChannelSubscriber(2)
	b.Subscribe(ch)

	for i := 0; i < 5; i++ {
		b.Emit(Message{Type: Progress, Percent: i * 20})
	}
	assert.Equal(t, uint64(3), ch.Dropped())
	assert.Equal(t, 0, (<-ch.C()).Percent)
	assert.Equal(t, 20, (<-ch.C()).Percent)
}

func TestMessage_String(t *testing.T) {
	m := Message{
		Type:    OutputRenamed,
		Node:    1,
		OldPath: data.MustParsePath("A/B"),
		NewPath: data.MustParsePath("A/C"),
	}
	assert.Equal(t, "[1] output-renamed: A/B -> A/C", m.String())
	assert.Equal(t, "[0] run-state: executing", Message{Type: RunStateChanged, RunState: Executing}.String())
	assert.Equal(t, "[3] fault-state: errors", Message{Type: FaultStateChanged, Node: 3, FaultState: Errors}.String())
}
