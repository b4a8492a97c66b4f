package filter

import "fmt"

// MessageType classifies a message emitted by a running filter.
type MessageType int

const (
	MessageInfo MessageType = iota + 1
	MessageProgress
	MessageWarning
	MessageError
)

func (t MessageType) String() string {
	switch t {
	case MessageInfo:
		return "info"
	case MessageProgress:
		return "progress"
	case MessageWarning:
		return "warning"
	case MessageError:
		return "error"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is a plain-data notification from a filter.
type Message struct {
	Type     MessageType
	Text     string
	Progress int // percent, for MessageProgress
}

// MessageHandler receives filter messages. It is called synchronously on the
// filter's goroutine.
type MessageHandler func(Message)

// Send delivers m, tolerating a nil handler.
func (h MessageHandler) Send(m Message) {
	if h != nil {
		h(m)
	}
}

// Info sends an informational message.
func (h MessageHandler) Info(format string, args ...any) {
	h.Send(Message{Type: MessageInfo, Text: fmt.Sprintf(format, args...)})
}

// Progress sends a progress update clamped to [0, 100].
func (h MessageHandler) Progress(percent int, format string, args ...any) {
	percent = min(max(percent, 0), 100)
	h.Send(Message{Type: MessageProgress, Progress: percent, Text: fmt.Sprintf(format, args...)})
}

// Warn sends a warning message.
func (h MessageHandler) Warn(format string, args ...any) {
	h.Send(Message{Type: MessageWarning, Text: fmt.Sprintf(format, args...)})
}
