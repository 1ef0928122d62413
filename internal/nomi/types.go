package nomi

import (
	"fmt"
	"time"
)

// Nomi is an agent persona on the Nomi platform.
type Nomi struct {
	UUID             string    `json:"uuid"`
	Name             string    `json:"name"`
	Gender           string    `json:"gender,omitempty"`
	Created          time.Time `json:"created"`
	RelationshipType string    `json:"relationshipType,omitempty"`
}

// Message is one chat message exchanged with a Nomi.
type Message struct {
	UUID string    `json:"uuid"`
	Text string    `json:"text"`
	Sent time.Time `json:"sent"`
}

type chatRequest struct {
	MessageText string `json:"messageText"`
}

type chatResponse struct {
	SentMessage  Message `json:"sentMessage"`
	ReplyMessage Message `json:"replyMessage"`
}

type listResponse struct {
	Nomis []Nomi `json:"nomis"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// APIError is a non-2xx response from the Nomi API.
type APIError struct {
	StatusCode int
	Type       string // e.g. "NomiNotFound", "InvalidAPIKey"
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Type != "" && e.Message != "":
		return fmt.Sprintf("nomi api: %s: %s (HTTP %d)", e.Type, e.Message, e.StatusCode)
	case e.Type != "":
		return fmt.Sprintf("nomi api: %s (HTTP %d)", e.Type, e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("nomi api: %s (HTTP %d)", e.Message, e.StatusCode)
	default:
		return fmt.Sprintf("nomi api: HTTP %d", e.StatusCode)
	}
}
