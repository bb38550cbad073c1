package id

import (
	"fmt"

	"github.com/google/uuid"
)

// NewCallID returns an identifier for a tool call.
func NewCallID() string {
	return newIdentifier("call")
}

// NewRequestID returns an identifier for a model request.
func NewRequestID() string {
	return newIdentifier("req")
}

// newIdentifier prefers time-ordered UUIDv7 bodies and falls back to v4.
func newIdentifier(prefix string) string {
	body, err := uuid.NewV7()
	if err != nil {
		body = uuid.New()
	}
	return fmt.Sprintf("%s_%s", prefix, body.String())
}
