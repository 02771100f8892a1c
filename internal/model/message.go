package model

import (
	"strings"
	"time"
)

// Kind distinguishes the human seed message from worker output.
type Kind string

const (
	KindHuman     Kind = "human"
	KindAssistant Kind = "assistant"
)

// Message is one immutable entry in a Conversation.
type Message struct {
	// Source is the identifier of the role that produced the message.
	Source  string `json:"source"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`

	// Sequence starts at 1 and is gapless within a Conversation.
	Sequence  int       `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// Empty reports whether the message carries no visible text.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Content) == ""
}
