package transport

import "context"

// Update is one inbound event from the chat transport. It carries at most one
// message; Message is nil for updates without a text payload (media, service
// messages).
type Update struct {
	ID      int
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound reply primitive.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a full chat transport: it feeds updates into out and sends replies.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// Target returns the reply target for a message (same chat, same thread).
func (m *Message) Target() ChatTarget {
	if m == nil {
		return ChatTarget{}
	}
	return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}
