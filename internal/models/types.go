package models

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// WelcomeID marks the synthetic greeting shown at the top of every transcript.
// It is never sent to the generation backend.
const WelcomeID = "welcome"

// User is a visitor identity. Local fallback users have IDs prefixed with "local-".
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

// Conversation is created once per session before any message exchange.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single transcript entry. In the UI transcript ID is a local
// identifier and has no relation to the stored row id.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Sender         Sender `json:"sender"`
	Text           string `json:"message"`
}

// Part is one catalog entry.
type Part struct {
	Type  string  `json:"type"`
	Name  string  `json:"name"`
	Specs string  `json:"specs"`
	Price float64 `json:"price"`
}
