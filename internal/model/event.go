package model

import (
	"encoding/json"
)

// EventStatus discriminates the events published while a pipeline runs.
type EventStatus string

const (
	EventStarted EventStatus = "started"
	EventStep    EventStatus = "step"
	EventDone    EventStatus = "done"
	EventError   EventStatus = "error"
)

// StepData is the payload of a step event.
type StepData struct {
	Sender   string `json:"sender"`
	Role     Kind   `json:"role"`
	Content  string `json:"content"`
	Sequence int    `json:"sequence"`
}

// Event is one unit of progress delivered to the streaming consumer.
// Only the field matching Status is meaningful.
type Event struct {
	Status    EventStatus
	Message   string
	Data      *StepData
	Result    *string
	Error     string
	Cancelled bool
}

// StartedEvent announces the seed message of a run.
func StartedEvent(message string) Event {
	return Event{Status: EventStarted, Message: message}
}

// StepEvent republishes a message appended to the conversation.
func StepEvent(msg Message) Event {
	return Event{Status: EventStep, Data: &StepData{
		Sender:   msg.Source,
		Role:     msg.Kind,
		Content:  msg.Content,
		Sequence: msg.Sequence,
	}}
}

// DoneEvent carries the extracted result; nil means no result was found.
func DoneEvent(result *string) Event {
	return Event{Status: EventDone, Result: result}
}

// ErrorEvent reports a failed run.
func ErrorEvent(reason string) Event {
	return Event{Status: EventError, Error: reason}
}

// CancelledEvent reports a run stopped because the caller went away.
func CancelledEvent(reason string) Event {
	return Event{Status: EventError, Error: reason, Cancelled: true}
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Status == EventDone || e.Status == EventError
}

// MarshalJSON renders the wire payload for the event's status.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Status {
	case EventStarted:
		return json.Marshal(struct {
			Status  EventStatus `json:"status"`
			Message string      `json:"message"`
		}{e.Status, e.Message})
	case EventStep:
		return json.Marshal(struct {
			Status EventStatus `json:"status"`
			Data   *StepData   `json:"data"`
		}{e.Status, e.Data})
	case EventDone:
		return json.Marshal(struct {
			Status EventStatus `json:"status"`
			Result *string     `json:"result"`
		}{e.Status, e.Result})
	default:
		return json.Marshal(struct {
			Status    EventStatus `json:"status"`
			Error     string      `json:"error"`
			Cancelled bool        `json:"cancelled,omitempty"`
		}{e.Status, e.Error, e.Cancelled})
	}
}
