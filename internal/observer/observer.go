// Package observer carries pipeline notifications to subscribers that the
// engine knows nothing about.
//
// Delivery is synchronous on the emitting goroutine, in emission order, to
// the subscribers present when Emit was called. Subscribe, Close and Emit may
// be called concurrently.
package observer

import (
	"fmt"
	"sync"

	"github.com/roach88/datapipe/internal/data"
)

// Type discriminates messages.
type Type int

const (
	RunStateChanged Type = iota + 1
	FaultStateChanged
	Progress
	Info
	Warning
	Error
	NodeAdded
	NodeRemoved
	OutputRenamed
)

var typeNames = map[Type]string{
	RunStateChanged:   "run-state",
	FaultStateChanged: "fault-state",
	Progress:          "progress",
	Info:              "info",
	Warning:           "warning",
	Error:             "error",
	NodeAdded:         "node-added",
	NodeRemoved:       "node-removed",
	OutputRenamed:     "output-renamed",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// RunState is what a node is doing right now.
type RunState int

const (
	Idle RunState = iota
	Queued
	Preflighting
	Executing
)

func (s RunState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Queued:
		return "queued"
	case Preflighting:
		return "preflighting"
	case Executing:
		return "executing"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// FaultState summarizes the diagnostics of a node's last run.
type FaultState int

const (
	NoFault FaultState = iota
	Warnings
	Errors
)

func (s FaultState) String() string {
	switch s {
	case NoFault:
		return "none"
	case Warnings:
		return "warnings"
	case Errors:
		return "errors"
	default:
		return fmt.Sprintf("FaultState(%d)", int(s))
	}
}

// Message is a plain-data notification. Fields beyond Type, Node and Filter
// are set according to Type.
type Message struct {
	Type Type
	// Node is the index of the emitting node, or -1 for pipeline-level
	// messages.
	Node   int
	Filter string

	RunState   RunState   // RunStateChanged
	FaultState FaultState // FaultStateChanged
	Percent    int        // Progress
	Code       int        // Warning, Error
	Text       string
	OldPath    data.Path // OutputRenamed
	NewPath    data.Path // OutputRenamed
}

func (m Message) String() string {
	switch m.Type {
	case RunStateChanged:
		return fmt.Sprintf("[%d] %s: %s", m.Node, m.Type, m.RunState)
	case FaultStateChanged:
		return fmt.Sprintf("[%d] %s: %s", m.Node, m.Type, m.FaultState)
	case Progress:
		return fmt.Sprintf("[%d] %s: %d%% %s", m.Node, m.Type, m.Percent, m.Text)
	case Warning, Error:
		return fmt.Sprintf("[%d] %s %d: %s", m.Node, m.Type, m.Code, m.Text)
	case OutputRenamed:
		return fmt.Sprintf("[%d] %s: %s -> %s", m.Node, m.Type, m.OldPath, m.NewPath)
	default:
		return fmt.Sprintf("[%d] %s: %s", m.Node, m.Type, m.Text)
	}
}

// Subscriber receives messages. Notify must not block for long: it runs on
// the pipeline's goroutine.
type Subscriber interface {
	Notify(Message)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Message)

func (f SubscriberFunc) Notify(m Message) { f(m) }

// Bus fans messages out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs []*Subscription
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	sub  Subscriber
	once sync.Once
}

// Subscribe attaches s. Messages emitted after Subscribe returns reach s.
func (b *Bus) Subscribe(s Subscriber) *Subscription {
	sub := &Subscription{bus: b, sub: s}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Close detaches the subscription. It is safe to call more than once and
// from inside Notify; a message already being delivered may still arrive.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, cur := range b.subs {
			if cur == s {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	})
}

// Emit delivers m to a snapshot of the current subscribers.
func (b *Bus) Emit(m Message) {
	b.mu.RLock()
	snapshot := b.subs
	b.mu.RUnlock()
	for _, s := range snapshot {
		s.sub.Notify(m)
	}
}

// Len returns the number of attached subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Forward re-emits every message of from on to until the returned
// subscription is closed.
func Forward(from, to *Bus) *Subscription {
	return from.Subscribe(SubscriberFunc(to.Emit))
}
