package model

import (
	"fmt"
	"time"
)

// Location is a canonical geographic point. Records are deduplicated on the
// (latitude, longitude) pair rounded to 4 decimal places, with (name, country)
// as a secondary key.
type Location struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Country    string  `json:"country"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Timezone   string  `json:"timezone"`
	UsageCount int64   `json:"usage_count"`
}

// Label returns the "name, country" form used in responses and prompts.
func (l *Location) Label() string {
	return fmt.Sprintf("%s, %s", l.Name, l.Country)
}

// Conversation groups the messages exchanged within one browser session.
type Conversation struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single chat turn, optionally tied to a location. Metadata on
// assistant messages carries the query type, date info and raw weather payload.
type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	LocationID     *int64         `json:"location_id,omitempty"`
	Content        string         `json:"content"`
	IsUser         bool           `json:"is_user"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	Location *Location `json:"location,omitempty"`
}
