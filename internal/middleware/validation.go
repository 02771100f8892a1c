package middleware

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxTopicLength   = 500
	maxMessageLength = 100000
	maxNameLength    = 200
)

var pipelineNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateTopic validates an essay topic.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("topic cannot be empty")
	}
	if len(topic) > maxTopicLength {
		return errors.New("topic exceeds maximum length")
	}
	if !utf8.ValidString(topic) {
		return errors.New("topic must be valid UTF-8")
	}
	return nil
}

// ValidateEssayContent validates an essay submitted for revision.
func ValidateEssayContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("essay content cannot be empty")
	}
	return validateText("essay content", content)
}

// ValidateMessageContent validates a free-text pipeline seed message.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("message cannot be empty")
	}
	return validateText("message", content)
}

// ValidatePipelineName validates a pipeline name path segment.
func ValidatePipelineName(name string) error {
	if !pipelineNamePattern.MatchString(name) {
		return errors.New("invalid pipeline name format")
	}
	return nil
}

// ValidateSubjectName validates a catalogue subject name.
func ValidateSubjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name cannot be empty")
	}
	return validateShort("name", name)
}

// ValidateQuestion validates a catalogue question's title and text. With
// partial set, empty fields are allowed and mean "unchanged".
func ValidateQuestion(title, text string, partial bool) error {
	if !partial && strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if !partial && strings.TrimSpace(text) == "" {
		return errors.New("question cannot be empty")
	}
	if err := validateShort("title", title); err != nil {
		return err
	}
	// The question text becomes a writing topic, so it shares the topic limits.
	if len(text) > maxTopicLength {
		return errors.New("question exceeds maximum length")
	}
	if !utf8.ValidString(text) {
		return errors.New("question must be valid UTF-8")
	}
	return nil
}

// ParseID parses a positive numeric path or query identifier.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id format")
	}
	return id, nil
}

func validateShort(field, value string) error {
	if len(value) > maxNameLength {
		return errors.New(field + " exceeds maximum length")
	}
	if !utf8.ValidString(value) {
		return errors.New(field + " must be valid UTF-8")
	}
	return nil
}

func validateText(field, content string) error {
	if len(content) > maxMessageLength {
		return errors.New(field + " exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New(field + " must be valid UTF-8")
	}
	return nil
}
