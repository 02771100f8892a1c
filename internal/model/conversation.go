// Package model defines data structures for the essay pipeline service.
package model

import (
	"time"
)

// Conversation is the append-only record of one pipeline run.
// It is owned by a single runner and is not safe for concurrent use.
type Conversation struct {
	messages []Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append records a new message and returns it with its sequence number assigned.
func (c *Conversation) Append(source string, kind Kind, content string) Message {
	msg := Message{
		Source:    source,
		Kind:      kind,
		Content:   content,
		Sequence:  len(c.messages) + 1,
		CreatedAt: time.Now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Messages returns a copy of the history in order.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages recorded.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
