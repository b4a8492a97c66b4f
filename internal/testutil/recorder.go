package testutil

import (
	"sync"

	"github.com/roach88/datapipe/internal/observer"
)

// Recorder is an observer.Subscriber that keeps every message it receives.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	msgs []observer.Message
}

func (r *Recorder) Notify(m observer.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []observer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observer.Message(nil), r.msgs...)
}

// OfType returns the recorded messages of type t.
func (r *Recorder) OfType(t observer.Type) []observer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []observer.Message
	for _, m := range r.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Strings renders every recorded message with Message.String.
func (r *Recorder) Strings() []string {
	msgs := r.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.String()
	}
	return out
}

// Reset drops all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
